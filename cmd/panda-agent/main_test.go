package main

import (
	"testing"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/logsink"
)

func TestApplyServeFlags(t *testing.T) {
	cases := []struct {
		args  []string
		flags map[string]string
		want  string
	}{
		{nil, nil, "0.0.0.0:63554"},
		{[]string{"127.0.0.1"}, nil, "127.0.0.1:63554"},
		{[]string{"127.0.0.1", "9000"}, nil, "127.0.0.1:9000"},
		{[]string{"127.0.0.1", "9000"}, map[string]string{"listen": "[::1]:8000"}, "[::1]:8000"},
	}
	for _, tc := range cases {
		cmd := newServeCmd(logsink.New())
		for k, v := range tc.flags {
			if err := cmd.Flags().Set(k, v); err != nil {
				t.Fatalf("set %s: %v", k, err)
			}
		}
		cfg := core.DefaultConfig()
		if err := applyServeFlags(cmd, tc.args, &cfg); err != nil {
			t.Fatalf("apply %v: %v", tc.args, err)
		}
		if cfg.Listen != tc.want {
			t.Fatalf("args %v flags %v: got %s want %s", tc.args, tc.flags, cfg.Listen, tc.want)
		}
	}
}

func TestApplyServeFlagsOverrides(t *testing.T) {
	cmd := newRootCmd(logsink.New())
	serveCmd, _, err := cmd.Find([]string{"serve"})
	if err != nil {
		t.Fatalf("find serve: %v", err)
	}
	if err := serveCmd.ParseFlags([]string{"--interpreter", "/usr/bin/python3.11", "--enforce-pin", "--journal", "/tmp/j.db", "--log", "debug"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	cfg := core.DefaultConfig()
	if err := applyServeFlags(serveCmd, nil, &cfg); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.Interpreter != "/usr/bin/python3.11" || !cfg.EnforcePin || cfg.Journal != "/tmp/j.db" || cfg.LogLevel != "debug" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}
