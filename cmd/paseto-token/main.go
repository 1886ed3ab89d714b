// paseto-token issues, verifies and inspects v4.public tokens from the
// command line. Keys default to PASETO_PUBLIC_KEY and PASETO_SECRET_KEY,
// optionally loaded from a .env file.
//
//	paseto-token issue --sub user-123 --email a@b.com --name Alice
//	paseto-token verify <token>
//	paseto-token inspect <token>
package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/bionicotaku/lingo-utils-pasetox/internal/dotenv"
	"github.com/spf13/pflag"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	publicKey string
	secretKey string
	subject   string
	email     string
	name      string
	envPath   string
}

func run(args []string, out io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		return errors.New("usage: paseto-token issue|verify|inspect [flags] [token]")
	}
	command, args := args[0], args[1:]

	envPath := dotenv.DefaultPath()
	if err := dotenv.Load(envPath, logger); err != nil {
		logger.Warn("load env file", "path", envPath, "error", err)
	}

	var opts options
	flagSet := pflag.NewFlagSet("paseto-token "+command, pflag.ContinueOnError)
	flagSet.StringVar(&opts.publicKey, "public-key", os.Getenv(pasetox.EnvVerificationKey), "base64url verification key (env "+pasetox.EnvVerificationKey+")")
	flagSet.StringVar(&opts.secretKey, "secret-key", os.Getenv(pasetox.EnvSigningKey), "base64url signing seed (env "+pasetox.EnvSigningKey+")")
	flagSet.StringVar(&opts.subject, "sub", "", "subject claim (issue)")
	flagSet.StringVar(&opts.email, "email", "", "email claim (issue)")
	flagSet.StringVar(&opts.name, "name", "", "name claim (issue)")
	flagSet.StringVar(&opts.envPath, "env", envPath, "path to .env file")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.envPath != "" && opts.envPath != envPath {
		if err := dotenv.Load(opts.envPath, logger); err != nil {
			logger.Warn("load env file", "path", opts.envPath, "error", err)
		}
		reloadDefaults(&opts)
	}

	switch command {
	case "issue":
		return issue(out, opts)
	case "verify":
		return verify(out, opts, tokenArg(flagSet.Args()))
	case "inspect":
		return inspect(out, tokenArg(flagSet.Args()))
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

// reloadDefaults fills key flags left empty from variables set by a late
// .env load.
func reloadDefaults(opts *options) {
	if opts.publicKey == "" {
		opts.publicKey = os.Getenv(pasetox.EnvVerificationKey)
	}
	if opts.secretKey == "" {
		opts.secretKey = os.Getenv(pasetox.EnvSigningKey)
	}
}

func tokenArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

func loadKeys(opts options) (*pasetox.Keys, error) {
	return pasetox.KeyConfig{
		VerificationKey: strings.TrimSpace(opts.publicKey),
		SigningKey:      strings.TrimSpace(opts.secretKey),
	}.Load()
}

func issue(out io.Writer, opts options) error {
	if opts.subject == "" {
		return errors.New("--sub is required")
	}
	keys, err := loadKeys(opts)
	if err != nil {
		return err
	}
	token, err := pasetox.Issue(keys, pasetox.DefaultClaims(opts.subject, opts.email, opts.name))
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func verify(out io.Writer, opts options, token string) error {
	if token == "" {
		return errors.New("token argument is required")
	}
	keys, err := loadKeys(opts)
	if err != nil {
		return err
	}
	claims, err := pasetox.Verify(keys, token)
	if err != nil {
		return fmt.Errorf("%s: %w", pasetox.CodeOf(err), err)
	}
	return printJSON(out, claims)
}

// inspect prints the payload of a token without checking its signature.
func inspect(out io.Writer, token string) error {
	body, ok := strings.CutPrefix(token, pasetox.Header)
	if !ok {
		return fmt.Errorf("token does not start with %q", pasetox.Header)
	}
	payload, _, ok := strings.Cut(body, ".")
	if !ok {
		return errors.New("token has no signature segment")
	}
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return fmt.Errorf("payload is not JSON: %w", err)
	}
	return printJSON(out, claims)
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
