package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	pasetox "github.com/bionicotaku/lingo-utils-pasetox"
)

func TestRunEnvFormat(t *testing.T) {
	var out bytes.Buffer
	if err := run(nil, &out); err != nil {
		t.Fatalf("run: %v", err)
	}

	values := map[string]string{}
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			t.Fatalf("unexpected line %q", line)
		}
		values[key] = value
	}

	keys, err := pasetox.LoadKeys(values[pasetox.EnvVerificationKey], values[pasetox.EnvSigningKey])
	if err != nil {
		t.Fatalf("generated keys do not load: %v", err)
	}
	if !keys.CanSign() {
		t.Fatal("generated keys must be able to sign")
	}
}

func TestRunJWKFormat(t *testing.T) {
	var out bytes.Buffer
	if err := run([]string{"--format", "jwk"}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var doc struct {
		Public  json.RawMessage `json:"public"`
		Private json.RawMessage `json:"private"`
	}
	if err := json.Unmarshal(out.Bytes(), &doc); err != nil {
		t.Fatalf("decode output %q: %v", out.String(), err)
	}
	keys, err := pasetox.LoadKeysFromJWK(doc.Public, doc.Private)
	if err != nil {
		t.Fatalf("LoadKeysFromJWK: %v", err)
	}
	token, err := pasetox.Issue(keys, pasetox.DefaultClaims("user-1", "", ""))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := pasetox.Verify(keys, token); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestRunUnknownFormat(t *testing.T) {
	if err := run([]string{"-f", "pem"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected unknown format error")
	}
}
