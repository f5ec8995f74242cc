// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadEnvFileParsing(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# credentials\n" +
		"OPENAI_API_KEY=sk-test\n" +
		"\n" +
		"SPACED_KEY = padded value \n" +
		"garbage line without equals\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	env, err := LoadEnvFile(path)
	if err != nil {
		t.Fatalf("LoadEnvFile failed: %v", err)
	}
	if got := env.Get("OPENAI_API_KEY"); got != "sk-test" {
		t.Errorf("OPENAI_API_KEY = %q", got)
	}
	if got := env.Get("SPACED_KEY"); got != "padded value" {
		t.Errorf("SPACED_KEY = %q, want trimmed", got)
	}
	if keys := env.Keys(); len(keys) != 2 {
		t.Errorf("Keys = %v", keys)
	}
}

func TestLoadEnvFileMissing(t *testing.T) {
	env, err := LoadEnvFile(filepath.Join(t.TempDir(), "absent.env"))
	if err != nil {
		t.Fatalf("missing file must not error: %v", err)
	}
	if len(env.Keys()) != 0 {
		t.Errorf("Keys = %v, want empty", env.Keys())
	}
}

func TestSetSecretPersistsAndExports(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	env, err := LoadEnvFile(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("YAT_TEST_SECRET", "")
	os.Unsetenv("YAT_TEST_SECRET")

	if err := env.SetSecret("YAT_TEST_SECRET", "value123"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	if os.Getenv("YAT_TEST_SECRET") != "value123" {
		t.Error("SetSecret must export to the process environment")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("env file not written: %v", err)
	}
	if !strings.Contains(string(data), "YAT_TEST_SECRET=value123") {
		t.Errorf("file content = %q", data)
	}

	info, _ := os.Stat(path)
	if info.Mode().Perm() != 0600 {
		t.Errorf("env file perm = %v, want 0600", info.Mode().Perm())
	}

	// Empty value removes the key from file and environment.
	if err := env.SetSecret("YAT_TEST_SECRET", ""); err != nil {
		t.Fatalf("SetSecret(empty) failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if strings.Contains(string(data), "YAT_TEST_SECRET") {
		t.Error("cleared secret still present in file")
	}
	if _, exists := os.LookupEnv("YAT_TEST_SECRET"); exists {
		t.Error("cleared secret still present in environment")
	}
}

func TestApplyDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("YAT_TEST_APPLY=from-file\n"), 0600); err != nil {
		t.Fatal(err)
	}
	env, err := LoadEnvFile(path)
	if err != nil {
		t.Fatal(err)
	}

	t.Setenv("YAT_TEST_APPLY", "from-env")
	env.Apply()
	if got := os.Getenv("YAT_TEST_APPLY"); got != "from-env" {
		t.Errorf("Apply overrode real environment: %q", got)
	}
}
