package main

import (
	"reflect"
	"testing"
)

func TestBuildQueryText(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"machine", "learning"}, "machine learning"},
		{[]string{"machine learning"}, "machine learning"},
		{[]string{"  spaced  "}, "spaced"},
		{nil, ""},
	}
	for _, tt := range tests {
		if got := buildQueryText(tt.args); got != tt.want {
			t.Errorf("buildQueryText(%v) = %q, want %q", tt.args, got, tt.want)
		}
	}
}

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		in   []string
		want []string
	}{
		{[]string{"-k", "5", "my query"}, []string{"-k", "5", "my query"}},
		{[]string{"my query", "-k", "5"}, []string{"-k", "5", "my query"}},
		{[]string{"plain", "query"}, []string{"plain", "query"}},
		{nil, nil},
	}
	for _, tt := range tests {
		got := argsReorder(tt.in)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("argsReorder(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoadConfig_missingFile(t *testing.T) {
	if _, _, err := loadConfig("/nonexistent/kioku/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
