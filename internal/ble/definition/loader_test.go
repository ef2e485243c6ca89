package definition

import (
	"os"
	"path/filepath"
	"testing"
)

func writeDefinitionFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
}

const g1000JSON = `{
	"schema_version": 2,
	"name": "G1000",
	"service_uuid": "0x044F",
	"characteristic_uuid": "0xA001",
	"inputs": [
		{"type": "Button", "label": "NAV", "press": "01", "release": "02"},
		{"type": "Encoder", "label": "HDG", "increment": "10", "decrement": "11"}
	]
}`

const fcuJSON = `{
	"schema_version": 2,
	"name": "FCU",
	"service_uuid": "0x0450",
	"characteristic_uuid": "0xA002",
	"inputs": [
		{"type": "Button", "label": "AP", "press": "01", "release": "02"}
	]
}`

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "g1000.json", g1000JSON)
	writeDefinitionFile(t, dir, "fcu.json", fcuJSON)
	writeDefinitionFile(t, dir, "notes.txt", "not a definition")

	r, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}
	if r.HadLoadError() {
		t.Error("HadLoadError() = true, want false")
	}

	// Lexical file order determines registration (and thus scan) order.
	all := r.All()
	if all[0].Name != "FCU" || all[1].Name != "G1000" {
		t.Errorf("registration order = [%s %s], want [FCU G1000]", all[0].Name, all[1].Name)
	}

	def := r.Get("G1000")
	if def == nil {
		t.Fatal("Get(G1000) = nil")
	}
	if in := def.FindInputByHexCode("01"); in == nil || in.Label != "NAV" {
		t.Error("loaded definition was not migrated (lookup table missing)")
	}
	if r.Get("NoSuchPanel") != nil {
		t.Error("Get() of unknown name should return nil")
	}
}

func TestLoadDirSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "a_broken.json", "{not valid json")
	writeDefinitionFile(t, dir, "b_future.json", `{"schema_version": 99, "name": "X", "service_uuid": "0x1", "characteristic_uuid": "0x2"}`)
	writeDefinitionFile(t, dir, "c_nouuid.json", `{"schema_version": 2, "name": "Y"}`)
	writeDefinitionFile(t, dir, "d_good.json", g1000JSON)

	r, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (only the valid file)", r.Len())
	}
	if !r.HadLoadError() {
		t.Error("HadLoadError() = false, want true (sticky flag)")
	}
	if r.Get("G1000") == nil {
		t.Error("valid definition should still load despite earlier failures")
	}
}

func TestLoadDirDuplicateNameFirstWins(t *testing.T) {
	dir := t.TempDir()
	writeDefinitionFile(t, dir, "a.json", g1000JSON)
	writeDefinitionFile(t, dir, "b.json", g1000JSON)

	r, err := LoadDir(dir, nil)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
	if !r.HadLoadError() {
		t.Error("duplicate name should set the load-error flag")
	}
}

func TestLoadDirMissing(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Error("LoadDir() of a missing directory should error")
	}
}

func TestRegistryAdd(t *testing.T) {
	r := NewRegistry()

	def := &DeviceDefinition{SchemaVersion: 2, Name: "G1000", ServiceUUID: "0x044F", CharacteristicUUID: "0xA001"}
	if err := r.Add(def); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := r.Add(def); err == nil {
		t.Error("Add() of a duplicate name should error")
	}
	if err := r.Add(&DeviceDefinition{}); err == nil {
		t.Error("Add() of an unnamed definition should error")
	}
}
