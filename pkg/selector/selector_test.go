package selector

import "testing"

func TestSelectIsDeterministic(t *testing.T) {
	s := New([]Endpoint{
		{ID: "a", Ready: true},
		{ID: "b", Ready: true},
		{ID: "c", Ready: true},
	})

	first, err := s.Select("task-1/file-3/chunk-7")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := s.Select("task-1/file-3/chunk-7")
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("selection is not deterministic: %s != %s", again.ID, first.ID)
		}
	}
}

func TestSelectSkipsNotReady(t *testing.T) {
	s := New([]Endpoint{
		{ID: "a", Ready: false},
		{ID: "b", Ready: true},
	})
	picked, err := s.Select("x")
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if picked.ID != "b" {
		t.Fatalf("expected only-ready endpoint b, got %s", picked.ID)
	}
}

func TestSelectErrorsWhenNoneReady(t *testing.T) {
	s := New([]Endpoint{{ID: "a", Ready: false}})
	if _, err := s.Select("x"); err == nil {
		t.Fatalf("expected error when no endpoints are ready")
	}
}
