package util

import (
	"reflect"
	"testing"
	"time"
)

func TestGetEnvNumeric(t *testing.T) {
	t.Setenv("PG_NUM", "7")
	if got := GetEnvNumeric("PG_NUM", 3); got != 7 {
		t.Fatalf("expected 7, got %v", got)
	}
	t.Setenv("PG_NUM", "seven")
	if got := GetEnvNumeric("PG_NUM", 3); got != 3 {
		t.Fatalf("expected default 3, got %v", got)
	}
	if got := GetEnvNumeric("PG_NUM_UNSET", 5); got != 5 {
		t.Fatalf("expected default 5, got %v", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("PG_BOOL", "true")
	if !GetEnvBool("PG_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("PG_BOOL", "yes")
	if GetEnvBool("PG_BOOL", false) {
		t.Fatal("expected default false for unparsable value")
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("PG_LIST", " http://a.test , ,http://b.test")
	got := GetEnvList("PG_LIST", nil)
	want := []string{"http://a.test", "http://b.test"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	t.Setenv("PG_LIST", " , ")
	if got := GetEnvList("PG_LIST", []string{"*"}); !reflect.DeepEqual(got, []string{"*"}) {
		t.Fatalf("expected default, got %v", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("PG_DUR", "90s")
	if got := GetEnvDuration("PG_DUR", time.Second); got != 90*time.Second {
		t.Fatalf("expected 90s, got %v", got)
	}
	t.Setenv("PG_DUR", "soon")
	if got := GetEnvDuration("PG_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default, got %v", got)
	}
	t.Setenv("PG_DUR", "-1s")
	if got := GetEnvDuration("PG_DUR", time.Second); got != time.Second {
		t.Fatalf("expected default for negative duration, got %v", got)
	}
}
