package ps

import "testing"

func TestOptionFromURLFull(t *testing.T) {
	u, err := ParseURL("svc:secret@cache01:6380/num_threads=4&&db=2&&prefix=emb")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}

	opt, err := optionFromURL(u)
	if err != nil {
		t.Fatalf("optionFromURL: %v", err)
	}
	if len(opt.InitAddress) != 1 || opt.InitAddress[0] != "cache01:6380" {
		t.Fatalf("InitAddress = %v", opt.InitAddress)
	}
	if opt.Username != "svc" || opt.Password != "secret" {
		t.Fatalf("auth = %q/%q", opt.Username, opt.Password)
	}
	if opt.SelectDB != 2 {
		t.Fatalf("SelectDB = %d, want 2", opt.SelectDB)
	}
	// 4 threads fit in 2^2 pipelined connections.
	if opt.PipelineMultiplex != 2 {
		t.Fatalf("PipelineMultiplex = %d, want 2", opt.PipelineMultiplex)
	}
}

func TestOptionFromURLDefaults(t *testing.T) {
	u, err := ParseURL("localhost")
	if err != nil {
		t.Fatalf("ParseURL: %v", err)
	}

	opt, err := optionFromURL(u)
	if err != nil {
		t.Fatalf("optionFromURL: %v", err)
	}
	if len(opt.InitAddress) != 1 || opt.InitAddress[0] != "localhost" {
		t.Fatalf("InitAddress = %v", opt.InitAddress)
	}
	if opt.SelectDB != 0 || opt.Username != "" || opt.PipelineMultiplex != 0 {
		t.Fatalf("opt = %+v, want zero defaults", opt)
	}
}

func TestOptionFromURLRejectsBadParams(t *testing.T) {
	for _, raw := range []string{
		"localhost/db=notanumber",
		"localhost/num_threads=0",
		"localhost/num_threads=x",
	} {
		u, err := ParseURL(raw)
		if err != nil {
			t.Fatalf("ParseURL(%q): %v", raw, err)
		}
		if _, err := optionFromURL(u); err == nil {
			t.Fatalf("optionFromURL(%q): expected error", raw)
		}
	}
}
