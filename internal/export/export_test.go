// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package export

import (
	"bytes"
	"context"
	"crypto/tls"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tombee/tracebind/internal/config"
)

func TestNewUnknownType(t *testing.T) {
	_, err := New(context.Background(), config.Exporter{Type: "carrier-pigeon"})
	if err == nil {
		t.Fatal("expected error for unknown exporter type")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("error %v does not name the bad type", err)
	}
}

func TestConsoleExporterWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	exporter, err := NewConsoleExporter(ConsoleConfig{Writer: &buf})
	if err != nil {
		t.Fatalf("NewConsoleExporter: %v", err)
	}
	defer exporter.Shutdown(context.Background())

	// Exporting nothing must not write anything.
	if err := exporter.ExportSpans(context.Background(), nil); err != nil {
		t.Fatalf("ExportSpans: %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("unexpected output for empty batch: %q", buf.String())
	}
}

func TestBuildTLSConfigDefaults(t *testing.T) {
	cfg, err := buildTLSConfig("")
	if err != nil {
		t.Fatalf("buildTLSConfig: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
	if cfg.RootCAs != nil {
		t.Errorf("RootCAs set without a CA path")
	}
}

func TestBuildTLSConfigBadCA(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ca.pem")
	if err := os.WriteFile(path, []byte("not a certificate"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := buildTLSConfig(path); err == nil {
		t.Fatal("expected error for invalid CA file")
	}

	if _, err := buildTLSConfig(filepath.Join(t.TempDir(), "missing.pem")); err == nil {
		t.Fatal("expected error for missing CA file")
	}
}
