package chunkstore

import (
	"testing"

	"github.com/wugren/buckyos/pkg/kv"
)

func TestInfoAndUploadBookkeepingIndependent(t *testing.T) {
	s := New(kv.NewMemStore())

	pushed, err := s.IsInfoPushed("hash1")
	if err != nil || pushed {
		t.Fatalf("expected not pushed, got pushed=%v err=%v", pushed, err)
	}

	if err := s.MarkInfoPushed("hash1", 1024); err != nil {
		t.Fatalf("MarkInfoPushed: %v", err)
	}
	pushed, err = s.IsInfoPushed("hash1")
	if err != nil || !pushed {
		t.Fatalf("expected pushed, got pushed=%v err=%v", pushed, err)
	}

	uploaded, err := s.IsUploaded("hash1")
	if err != nil || uploaded {
		t.Fatalf("pushing info must not imply uploaded: uploaded=%v err=%v", uploaded, err)
	}

	if err := s.MarkUploaded("hash1"); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	uploaded, err = s.IsUploaded("hash1")
	if err != nil || !uploaded {
		t.Fatalf("expected uploaded, got uploaded=%v err=%v", uploaded, err)
	}
}
