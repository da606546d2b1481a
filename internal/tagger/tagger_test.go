package tagger

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "python def",
			input: "def foo(): pass",
			want:  []string{LabelPython, LabelCode},
		},
		{
			name:  "empty falls back to logic",
			input: "",
			want:  []string{LabelLogic},
		},
		{
			name:  "typescript retracts javascript",
			input: "const x: string = 'a'",
			want:  []string{LabelTypeScript, LabelCode},
		},
		{
			name:  "as const retracts javascript",
			input: "let x = 1 as const",
			want:  []string{LabelTypeScript, LabelCode},
		},
		{
			name:  "plain javascript",
			input: "const add = (a, b) => a + b",
			want:  []string{LabelJavaScript, LabelCode},
		},
		{
			name:  "react with next.js",
			input: "'use client'\nimport { useState } from 'react'",
			want:  []string{LabelReact, LabelNextJS, LabelCode},
		},
		{
			name:  "next.js signal without react is ignored",
			input: "getServerSideProps",
			want:  []string{LabelLogic},
		},
		{
			name:  "component tag is case-sensitive",
			input: "<Button>",
			want:  []string{LabelReact, LabelCode},
		},
		{
			name:  "lowercase html tag is not react",
			input: "<button>",
			want:  []string{LabelLogic},
		},
		{
			name:  "unity implies csharp",
			input: "public class Player : MonoBehaviour {}",
			want:  []string{LabelCSharp, LabelUnity, LabelCode},
		},
		{
			name:  "unreal implies cpp",
			input: "UCLASS()\nclass AMyActor : public AActor",
			want:  []string{LabelUnreal, LabelCPP, LabelCode},
		},
		{
			name:  "sql",
			input: "SELECT id FROM users WHERE active",
			want:  []string{LabelSQL, LabelCode},
		},
		{
			name:  "several languages at once",
			input: "def f(self):\n  print(x)\nSELECT a FROM b",
			want:  []string{LabelPython, LabelSQL, LabelCode},
		},
		{
			name:  "role and output",
			input: "You are a helpful assistant. Respond in JSON.",
			want:  []string{LabelRole, LabelOutput},
		},
		{
			name:  "rules and context",
			input: "Do not mention the database",
			want:  []string{LabelRules, LabelContext},
		},
		{
			name:  "case-insensitive intents",
			input: "ACT AS a reviewer",
			want:  []string{LabelRole},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.input)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Classify(%q) mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestClassify_NeverEmptyAndIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"hello",
		strings.Repeat("x", 10000),
		"\x00\xff invalid utf8",
		"std::vector<int> v; // nullptr",
		"import numpy as np",
	}
	for _, in := range inputs {
		first := Classify(in)
		if len(first) == 0 {
			t.Errorf("Classify(%q) returned empty set", in)
		}
		if diff := cmp.Diff(first, Classify(in)); diff != "" {
			t.Errorf("Classify(%q) not idempotent:\n%s", in, diff)
		}
	}
}

func TestClassify_StrictDialectNeverKeepsLooseLabel(t *testing.T) {
	inputs := []string{
		"function f(a: number) { console.log(a) }",
		"var y = 2; interface Foo {}",
		"export default function X(): void {}",
	}
	for _, in := range inputs {
		got := Classify(in)
		if !slices.Contains(got, LabelTypeScript) {
			t.Errorf("Classify(%q) = %v, want TypeScript", in, got)
		}
		if slices.Contains(got, LabelJavaScript) {
			t.Errorf("Classify(%q) = %v, JavaScript should be retracted", in, got)
		}
	}
}

func TestIsBuiltin(t *testing.T) {
	for _, l := range Builtin() {
		if !IsBuiltin(l) {
			t.Errorf("IsBuiltin(%q) = false", l)
		}
	}
	if IsBuiltin("Kubernetes") {
		t.Error("custom tag reported as builtin")
	}

	// Builtin returns a copy
	b := Builtin()
	b[0] = "mutated"
	if Builtin()[0] == "mutated" {
		t.Error("Builtin() exposed internal slice")
	}
}
