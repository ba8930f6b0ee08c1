package classifier

import "testing"

func TestClassifyTotality(t *testing.T) {
	paths := []string{
		"",
		"/a",
		"/a/b/c.mkv",
		"/root/Movies/Random.mkv",
	}
	for _, p := range paths {
		c := Classify(p)
		if c.MediaType == "" {
			t.Errorf("Classify(%q) returned empty MediaType", p)
		}
	}
}

func TestClassifyOrder(t *testing.T) {
	c := Classify("/lib/Avatar/Behind The Scenes/MakingOf.mkv")
	if c.MediaType != Extra {
		t.Fatalf("expected Extra, got %s", c.MediaType)
	}
}

func TestClassifyExtraBySuffix(t *testing.T) {
	c := Classify("/lib/Avatar/Avatar-trailer.mkv")
	if c.MediaType != Extra {
		t.Fatalf("expected Extra, got %s", c.MediaType)
	}
}

func TestClassifyNumberedTVInFilename(t *testing.T) {
	c := Classify("/root/TV/Some Show/Season 1/Some.Show.S01E01.mkv")
	if c.MediaType != TvEpisode {
		t.Fatalf("expected TvEpisode, got %s", c.MediaType)
	}
	if c.Season != 1 || c.EpisodeStart != 1 {
		t.Fatalf("expected S01E01, got season=%d episode=%d", c.Season, c.EpisodeStart)
	}
	if c.SourcePath != "/root/TV/Some Show" {
		t.Fatalf("expected source_path=/root/TV/Some Show, got %q", c.SourcePath)
	}
}

func TestClassifyNumberedTVRange(t *testing.T) {
	c := Classify("/root/TV/Show/Season 2/Show.S02E03-E04.mkv")
	if c.EpisodeStart != 3 || c.EpisodeEnd != 4 {
		t.Fatalf("expected episode range 3-4, got %d-%d", c.EpisodeStart, c.EpisodeEnd)
	}
}

func TestClassifyNumberedTVBySeasonFolder(t *testing.T) {
	c := Classify("/root/TV/Some Show/Season 1/E01.mkv")
	if c.MediaType != TvEpisode {
		t.Fatalf("expected TvEpisode, got %s", c.MediaType)
	}
	if c.Season != 1 || c.EpisodeStart != 1 {
		t.Fatalf("expected season=1 episode=1, got season=%d episode=%d", c.Season, c.EpisodeStart)
	}
}

func TestClassifySpecialsFolder(t *testing.T) {
	c := Classify("/root/TV/Some Show/Specials/E01.mkv")
	if c.MediaType != TvEpisode {
		t.Fatalf("expected TvEpisode, got %s", c.MediaType)
	}
	if c.Season != 0 {
		t.Fatalf("expected season=0, got %d", c.Season)
	}
	if c.SourcePath != "/root/TV/Some Show" {
		t.Fatalf("expected source_path=/root/TV/Some Show, got %q", c.SourcePath)
	}
}

func TestClassifyAirDateTV(t *testing.T) {
	c := Classify("/root/TV/Daily Show/Daily.Show.2021-03-05.mkv")
	if c.MediaType != TvEpisode {
		t.Fatalf("expected TvEpisode, got %s", c.MediaType)
	}
	if c.Season != 2021 {
		t.Fatalf("expected season=2021, got %d", c.Season)
	}
	// March 5th in a non-leap calendar: 31 (Jan) + 28 (Feb) + 5 = 64.
	if c.EpisodeStart != 64 {
		t.Fatalf("expected episode=64, got %d", c.EpisodeStart)
	}
}

func TestClassifyMovieParenYear(t *testing.T) {
	c := Classify("/root/Movies/Avatar (2009)/Avatar (2009).mkv")
	if c.MediaType != Movie {
		t.Fatalf("expected Movie, got %s", c.MediaType)
	}
	if c.Title != "Avatar" || c.Year != 2009 {
		t.Fatalf("expected Avatar/2009, got %s/%d", c.Title, c.Year)
	}
	if c.SourcePath != "/root/Movies/Avatar (2009)" {
		t.Fatalf("expected source_path set, got %q", c.SourcePath)
	}
}

func TestClassifyMovieEdition(t *testing.T) {
	c := Classify("/root/Movies/Avatar (2009)/Avatar (2009) - Directors Cut.mkv")
	if c.Edition != "Directors Cut" {
		t.Fatalf("expected edition 'Directors Cut', got %q", c.Edition)
	}
}

func TestClassifyMoviePartIndex(t *testing.T) {
	c := Classify("/root/Movies/Old Film (1970)/Old Film (1970) - CD1.mkv")
	if !c.HasPart || c.PartIndex != 1 {
		t.Fatalf("expected part_index=1, got has=%v idx=%d", c.HasPart, c.PartIndex)
	}
}

func TestClassifyMovieLooseNoSourcePath(t *testing.T) {
	c := Classify("/root/Movies/Avatar (2009).mkv")
	if c.MediaType != Movie {
		t.Fatalf("expected Movie, got %s", c.MediaType)
	}
	if c.SourcePath != "" {
		t.Fatalf("expected no source_path for loose movie, got %q", c.SourcePath)
	}
}

func TestClassifyGenericFallback(t *testing.T) {
	c := Classify("/root/Movies/Random.mkv")
	if c.MediaType != Generic {
		t.Fatalf("expected Generic, got %s", c.MediaType)
	}
	if c.SourcePath != "" {
		t.Fatalf("expected no source_path, got %q", c.SourcePath)
	}
}
