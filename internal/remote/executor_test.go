package remote

import (
	"testing"
)

func TestParsePID(t *testing.T) {
	tests := []struct {
		name   string
		stdout string
		want   *int
	}{
		{
			name:   "plain pid",
			stdout: "VM vm1 creada correctamente\nQEMU PID 12345\n",
			want:   intPtr(12345),
		},
		{
			name:   "parenthesized pid",
			stdout: "arrancando hipervisor\nproceso con PID (9871)\n",
			want:   intPtr(9871),
		},
		{
			name:   "no pid line",
			stdout: "VM vm1 creada correctamente\n",
			want:   nil,
		},
		{
			name:   "pid line without number",
			stdout: "PID desconocido\n",
			want:   nil,
		},
		{
			name:   "empty output",
			stdout: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parsePID(tt.stdout)
			if (got == nil) != (tt.want == nil) {
				t.Fatalf("parsePID(%q) = %v, want %v", tt.stdout, got, tt.want)
			}
			if got != nil && *got != *tt.want {
				t.Fatalf("parsePID(%q) = %d, want %d", tt.stdout, *got, *tt.want)
			}
		})
	}
}

func TestCommandSucceeded(t *testing.T) {
	tests := []struct {
		name string
		out  execResult
		want bool
	}{
		{
			name: "clean exit, silent stderr",
			out:  execResult{exitOK: true, stdout: "QEMU PID 12345"},
			want: true,
		},
		{
			name: "clean exit, noisy stderr with marker",
			out:  execResult{exitOK: true, stdout: "VM vm1 creada correctamente", stderr: "tap0: warning"},
			want: true,
		},
		{
			name: "clean exit, noisy stderr without marker",
			out:  execResult{exitOK: true, stderr: "qemu: could not open disk image"},
			want: false,
		},
		{
			name: "nonzero exit despite clean output",
			out:  execResult{stdout: "VM vm1 creada correctamente"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := commandSucceeded(tt.out); got != tt.want {
				t.Fatalf("commandSucceeded(%+v) = %v, want %v", tt.out, got, tt.want)
			}
		})
	}
}

func TestStripSudoPrompt(t *testing.T) {
	in := "[sudo] password for ubuntu: \nqemu: could not open disk image\n"
	if got := stripSudoPrompt(in); got != "qemu: could not open disk image" {
		t.Fatalf("unexpected stderr: %q", got)
	}

	if got := stripSudoPrompt("[sudo] password for ubuntu: \n"); got != "" {
		t.Fatalf("expected empty stderr, got %q", got)
	}
}

func intPtr(v int) *int { return &v }
