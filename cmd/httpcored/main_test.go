package main

import "testing"

func TestRootCommandDefaults(t *testing.T) {
	cmd := newRootCommand()
	addr, err := cmd.Flags().GetString("addr")
	if err != nil || addr != ":8443" {
		t.Fatalf("addr default: got %q, err %v", addr, err)
	}
	maxConns, err := cmd.Flags().GetInt("max-conns")
	if err != nil || maxConns != 0 {
		t.Fatalf("max-conns default: got %d, err %v", maxConns, err)
	}
}

func TestRunRequiresCertAndKey(t *testing.T) {
	err := run(&options{addr: ":0"})
	if err == nil {
		t.Fatal("expected error when --cert/--key are unset")
	}
}
