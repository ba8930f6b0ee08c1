package staging

import (
	"testing"

	"github.com/reelbox/reelbox/internal/classifier"
)

func TestFlushOrderNewContentThenExtras(t *testing.T) {
	s := New()
	s.StageNewContent("/show", Entry{Path: "/show/ep1.mkv", Classification: classifier.Classification{MediaType: classifier.TvEpisode}})
	s.StageExtra("/show", Entry{Path: "/show/Extras/clip.mkv", Classification: classifier.Classification{MediaType: classifier.Extra}})

	newContent, extras := s.Flush("/show")
	if len(newContent) != 1 || len(extras) != 1 {
		t.Fatalf("expected one entry in each buffer, got %d/%d", len(newContent), len(extras))
	}
	if newContent[0].Path != "/show/ep1.mkv" {
		t.Fatalf("unexpected new_content entry: %+v", newContent[0])
	}
}

func TestFlushDrainsBucket(t *testing.T) {
	s := New()
	s.StageNewContent("/show", Entry{Path: "/show/ep1.mkv"})
	s.Flush("/show")
	newContent, extras := s.Flush("/show")
	if len(newContent) != 0 || len(extras) != 0 {
		t.Fatal("expected buffers to be empty after a prior flush")
	}
}

func TestResetWipesBothBuffers(t *testing.T) {
	s := New()
	s.StageNewContent("/show", Entry{Path: "/show/ep1.mkv"})
	s.StageExtra("/show", Entry{Path: "/show/Extras/clip.mkv"})
	s.Reset()
	newContent, extras := s.Flush("/show")
	if len(newContent) != 0 || len(extras) != 0 {
		t.Fatal("expected Reset to wipe staged content")
	}
}

func TestPendingSourcePathsExcludesNone(t *testing.T) {
	s := New()
	s.StageNewContent("/show", Entry{Path: "/show/ep1.mkv"})
	s.StageExtra("", Entry{Path: "/loose/clip.mkv"})

	paths := s.PendingSourcePaths()
	if len(paths) != 1 || paths[0] != "/show" {
		t.Fatalf("expected only /show pending, got %v", paths)
	}
}
