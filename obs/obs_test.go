package obs

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type memoryBackend struct {
	mu      sync.Mutex
	records []*RunRecord
	err     error
}

func (m *memoryBackend) Write(ctx context.Context, rec *RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memoryBackend) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestAsyncSinkFlushesOnClose(t *testing.T) {
	backend := &memoryBackend{}
	sink := NewAsyncSink(backend, 16)

	for i := 0; i < 5; i++ {
		sink.Record(context.Background(), &RunRecord{Query: "q"})
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	if got := backend.len(); got != 5 {
		t.Errorf("backend received %d records, want 5", got)
	}
}

func TestAsyncSinkIgnoresNil(t *testing.T) {
	backend := &memoryBackend{}
	sink := NewAsyncSink(backend, 4)

	sink.Record(context.Background(), nil)
	sink.Close()

	if got := backend.len(); got != 0 {
		t.Errorf("backend received %d records, want 0", got)
	}
}

func TestAsyncSinkSurvivesBackendErrors(t *testing.T) {
	backend := &memoryBackend{err: errors.New("db down")}
	sink := NewAsyncSink(backend, 4)

	sink.Record(context.Background(), &RunRecord{Query: "q1"})
	sink.Record(context.Background(), &RunRecord{Query: "q2"})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}
}

func TestAsyncSinkDropsRecordsAfterClose(t *testing.T) {
	backend := &memoryBackend{}
	sink := NewAsyncSink(backend, 4)

	sink.Record(context.Background(), &RunRecord{Query: "q1"})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	// Late records must be dropped silently, never panic.
	sink.Record(context.Background(), &RunRecord{Query: "late"})
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close error: %v", err)
	}

	if got := backend.len(); got != 1 {
		t.Errorf("backend received %d records, want 1", got)
	}
}

func TestAsyncSinkRecordDuringClose(t *testing.T) {
	backend := &memoryBackend{}
	sink := NewAsyncSink(backend, 64)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				sink.Record(context.Background(), &RunRecord{Query: "q"})
			}
		}()
	}
	sink.Close()
	wg.Wait()
}

func TestAsyncSinkConcurrentProducers(t *testing.T) {
	backend := &memoryBackend{}
	sink := NewAsyncSink(backend, 256)

	var wg sync.WaitGroup
	const producers = 8
	const perProducer = 20
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				sink.Record(context.Background(), &RunRecord{Query: "q"})
			}
		}()
	}
	wg.Wait()
	sink.Close()

	if got := backend.len(); got != producers*perProducer {
		t.Errorf("backend received %d records, want %d", got, producers*perProducer)
	}
}

func TestMultiBackendReturnsFirstError(t *testing.T) {
	wantErr := errors.New("first failure")
	ok := &memoryBackend{}
	bad := &memoryBackend{err: wantErr}

	multi := MultiBackend{bad, ok}
	err := multi.Write(context.Background(), &RunRecord{Query: "q"})
	if !errors.Is(err, wantErr) {
		t.Errorf("error = %v, want %v", err, wantErr)
	}
	if ok.len() != 1 {
		t.Error("healthy backend should still receive the record")
	}
}
