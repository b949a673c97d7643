package service

import (
	"context"
	"errors"
	"testing"
)

type fake struct {
	name string
	log  *[]string
	err  error
}

func (f *fake) Run()           { *f.log = append(*f.log, "run "+f.name) }
func (f *fake) String() string { return f.name }

func (f *fake) Shutdown(context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.err
}

func TestGroupOrder(t *testing.T) {
	var log []string
	g := Group{}
	g.Add(&fake{name: "hub", log: &log}, &fake{name: "http", log: &log})
	g.Add(struct{}{}) // non-runnable members are skipped

	g.Start()
	if err := g.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	want := []string{"run hub", "run http", "stop http", "stop hub"}
	if len(log) != len(want) {
		t.Fatalf("log = %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("log = %v", log)
		}
	}
}

func TestGroupShutdownErrors(t *testing.T) {
	var log []string
	boom := errors.New("boom")
	g := Group{}
	g.Add(
		&fake{name: "a", log: &log},
		&fake{name: "b", log: &log, err: boom},
		&fake{name: "c", log: &log, err: context.Canceled},
	)

	err := g.Shutdown(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	// a canceled context is not a shutdown failure, and a failing
	// service does not stop the rest from being shut down
	if len(log) != 3 {
		t.Fatalf("log = %v", log)
	}
}
