// paseto-keygen generates an Ed25519 key pair for v4.public tokens and prints
// it as environment assignments or as JWKs.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	var format string
	flagSet := pflag.NewFlagSet("paseto-keygen", pflag.ContinueOnError)
	flagSet.StringVarP(&format, "format", "f", "env", "output format: env or jwk")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	keys, err := pasetox.GenerateKeys()
	if err != nil {
		return err
	}
	return write(out, keys, format)
}

func write(out io.Writer, keys *pasetox.Keys, format string) error {
	switch format {
	case "env":
		public, secret := keys.Encode()
		fmt.Fprintf(out, "# key %s\n", keys.Fingerprint())
		fmt.Fprintf(out, "%s=%s\n", pasetox.EnvVerificationKey, public)
		fmt.Fprintf(out, "%s=%s\n", pasetox.EnvSigningKey, secret)
		return nil
	case "jwk":
		public, err := keys.PublicJWK()
		if err != nil {
			return err
		}
		private, err := keys.PrivateJWK()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "{\"public\":%s,\"private\":%s}\n", public, private)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
