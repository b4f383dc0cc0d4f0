package helper

import (
	"reflect"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateUUID(t *testing.T) {
	a, err := GenerateUUID()
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateUUID()
	if a == b {
		t.Fatal("expected distinct ids")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("not a uuid: %q", a)
	}
}

func TestSplitList(t *testing.T) {
	if got := SplitList(" a, ,b,"); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Fatalf("got %v", got)
	}
	if got := SplitList(""); got != nil {
		t.Fatalf("got %v", got)
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("STUDY_BUDDY_TEST", "")
	if got := Getenv("STUDY_BUDDY_TEST", "x"); got != "x" {
		t.Fatalf("got %q", got)
	}
	t.Setenv("STUDY_BUDDY_TEST", "y")
	if got := Getenv("STUDY_BUDDY_TEST", "x"); got != "y" {
		t.Fatalf("got %q", got)
	}
	if FirstNonEmpty("", "", "z") != "z" {
		t.Fatal("FirstNonEmpty")
	}
}
