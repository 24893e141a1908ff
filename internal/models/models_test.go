package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

func TestRunLog_Fields(t *testing.T) {
	typ := reflect.TypeOf(RunLog{})
	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "Mode", "not null")
	assertGormTag(t, typ, "Error", "type:text")
	assertGormTag(t, typ, "StartedAt", "index")
}

func TestUploadAttempt_Fields(t *testing.T) {
	typ := reflect.TypeOf(UploadAttempt{})
	assertGormTag(t, typ, "ID", "autoIncrement")
	assertGormTag(t, typ, "RunID", "index")
	assertGormTag(t, typ, "ProjectID", "not null")
	assertGormTag(t, typ, "OK", "default:false")
}

func TestManifestEntry_Fields(t *testing.T) {
	typ := reflect.TypeOf(ManifestEntry{})
	assertGormTag(t, typ, "Path", "primaryKey")
	assertGormTag(t, typ, "CommittedHash", "size:64")
	assertGormTag(t, typ, "StagedHash", "size:64")
}

func TestRunLog_Succeeded(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		run  RunLog
		want bool
	}{
		{"unfinished", RunLog{}, false},
		{"finished", RunLog{FinishedAt: &now}, true},
		{"failed", RunLog{FinishedAt: &now, Error: "boom"}, false},
	}
	for _, tt := range tests {
		if got := tt.run.Succeeded(); got != tt.want {
			t.Errorf("%s: Succeeded() = %v, want %v", tt.name, got, tt.want)
		}
	}
}
