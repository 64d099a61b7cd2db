package jobs_test

import (
	"sync"
	"testing"
	"time"

	"ripcast/internal/jobs"
	"ripcast/internal/logging"
)

func newRegistry(t *testing.T, opts ...jobs.Option) *jobs.Registry {
	t.Helper()
	return jobs.NewRegistry(time.Hour, 0, logging.NewNop(), opts...)
}

func collect(t *testing.T, sub *jobs.Subscription, want int) []jobs.Frame {
	t.Helper()
	frames := make([]jobs.Frame, 0, want)
	timeout := time.After(2 * time.Second)
	for len(frames) < want {
		select {
		case frame, ok := <-sub.Frames():
			if !ok {
				return frames
			}
			frames = append(frames, frame)
		case <-timeout:
			t.Fatalf("timed out after %d of %d frames", len(frames), want)
		}
	}
	return frames
}

func TestCreateStartsInitializing(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	if id == "" {
		t.Fatal("expected job id")
	}

	snap, ok := reg.Snapshot(id)
	if !ok {
		t.Fatal("expected snapshot")
	}
	if snap.Status != jobs.StatusInitializing {
		t.Fatalf("unexpected initial status: %s", snap.Status)
	}
	if snap.Progress != 0 {
		t.Fatalf("expected zero progress, got %f", snap.Progress)
	}
}

func TestSubscribeDeliversConnectedFirst(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	reg.UpdateStatus(id, jobs.StatusDownloading, "")
	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 42.5, Speed: "1.2MiB/s"})

	sub, ok := reg.Subscribe(id)
	if !ok {
		t.Fatal("expected subscription")
	}
	defer sub.Close()

	frames := collect(t, sub, 1)
	if frames[0].Type != jobs.FrameConnected {
		t.Fatalf("expected connected frame first, got %s", frames[0].Type)
	}
	if frames[0].Status != jobs.StatusDownloading || frames[0].Progress != 42.5 {
		t.Fatalf("connected frame does not reflect state: %#v", frames[0])
	}
}

func TestStatusTransitionsForwardOnly(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")

	reg.UpdateStatus(id, jobs.StatusDownloading, "")
	reg.UpdateStatus(id, jobs.StatusFetchingMetadata, "backward")

	snap, _ := reg.Snapshot(id)
	if snap.Status != jobs.StatusDownloading {
		t.Fatalf("backward transition applied: %s", snap.Status)
	}
}

func TestProgressNeverDecreases(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	reg.UpdateStatus(id, jobs.StatusDownloading, "")

	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 70})
	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 40, Speed: "900KiB/s"})
	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 150})

	snap, _ := reg.Snapshot(id)
	if snap.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %f", snap.Progress)
	}
	if snap.Speed != "900KiB/s" {
		t.Fatalf("expected last speed to win, got %q", snap.Speed)
	}
}

func TestTerminalUpdatesIgnored(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")

	reg.Complete(id, jobs.Result{Filename: "a.mp3", Token: "tok"})
	reg.Fail(id, "should be ignored")
	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 10})

	snap, _ := reg.Snapshot(id)
	if snap.Status != jobs.StatusCompleted {
		t.Fatalf("terminal status changed: %s", snap.Status)
	}
	if snap.Progress != 100 {
		t.Fatalf("completion did not pin progress: %f", snap.Progress)
	}
	if snap.Error != "" {
		t.Fatalf("failed-after-complete recorded an error: %q", snap.Error)
	}
}

func TestTwoSubscribersSeeSameSequence(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")

	subA, _ := reg.Subscribe(id)
	subB, _ := reg.Subscribe(id)

	reg.UpdateStatus(id, jobs.StatusDownloading, "")
	reg.UpdateProgress(id, jobs.ProgressUpdate{Percent: 50})
	reg.Complete(id, jobs.Result{Filename: "a.mp3", Token: "tok"})

	framesA := collect(t, subA, 4)
	framesB := collect(t, subB, 4)

	for i := range framesA {
		if framesA[i].Type != framesB[i].Type || framesA[i].Progress != framesB[i].Progress {
			t.Fatalf("frame %d diverges: %#v vs %#v", i, framesA[i], framesB[i])
		}
	}
	if framesA[3].Type != jobs.FrameComplete || framesA[3].Token != "tok" {
		t.Fatalf("unexpected terminal frame: %#v", framesA[3])
	}
}

func TestStreamClosesAfterTerminalFrame(t *testing.T) {
	reg := newRegistry(t)
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	sub, _ := reg.Subscribe(id)

	reg.Fail(id, "network unreachable")

	frames := collect(t, sub, 2)
	if frames[1].Type != jobs.FrameError || frames[1].Error != "network unreachable" {
		t.Fatalf("unexpected error frame: %#v", frames[1])
	}

	select {
	case _, open := <-sub.Frames():
		if open {
			t.Fatal("expected channel to close after terminal frame")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel did not close")
	}
}

func TestSubscribeAfterTerminalGetsSnapshot(t *testing.T) {
	reg := jobs.NewRegistry(time.Hour, 100*time.Millisecond, logging.NewNop())
	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	reg.Complete(id, jobs.Result{Filename: "a.mp3", Token: "tok"})

	sub, ok := reg.Subscribe(id)
	if !ok {
		t.Fatal("job inside retention must remain subscribable")
	}
	frames := collect(t, sub, 1)
	if frames[0].Type != jobs.FrameConnected || frames[0].Status != jobs.StatusCompleted {
		t.Fatalf("unexpected late-subscriber frame: %#v", frames[0])
	}
}

func TestSubscribeDuringCompletionNeverMissesTerminalState(t *testing.T) {
	for i := 0; i < 200; i++ {
		reg := newRegistry(t)
		id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")

		start := make(chan struct{})
		done := make(chan struct{})
		go func() {
			<-start
			reg.Complete(id, jobs.Result{Filename: "a.mp3", Token: "tok"})
			close(done)
		}()

		close(start)
		sub, ok := reg.Subscribe(id)
		if !ok {
			t.Fatalf("iteration %d: job must remain subscribable", i)
		}
		<-done

		var frames []jobs.Frame
		timeout := time.After(2 * time.Second)
	drain:
		for {
			select {
			case frame, open := <-sub.Frames():
				if !open {
					break drain
				}
				frames = append(frames, frame)
			case <-timeout:
				t.Fatalf("iteration %d: channel never closed", i)
			}
		}

		if len(frames) == 0 {
			t.Fatalf("iteration %d: subscription closed without delivering any frames", i)
		}
		if frames[0].Type != jobs.FrameConnected {
			t.Fatalf("iteration %d: expected connected frame first, got %s", i, frames[0].Type)
		}
		last := frames[len(frames)-1]
		if last.Status != jobs.StatusCompleted {
			t.Fatalf("iteration %d: subscriber never observed terminal state: %#v", i, frames)
		}
	}
}

func TestSweepRemovesOnlyExpiredTerminalJobs(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	reg := newRegistry(t, jobs.WithClock(func() time.Time { return clock() }))

	live := reg.Create("https://youtube.com/watch?v=live", "mp3", "")
	done := reg.Create("https://youtube.com/watch?v=done", "mp3", "")
	reg.Complete(done, jobs.Result{Filename: "done.mp3", Token: "tok"})

	now = now.Add(2 * time.Hour)
	if removed := reg.Sweep(); removed != 1 {
		t.Fatalf("expected 1 swept job, got %d", removed)
	}
	if !reg.Exists(live) {
		t.Fatal("active job must survive the sweep")
	}
	if _, ok := reg.Subscribe(done); ok {
		t.Fatal("swept job must not be subscribable")
	}
}

func TestFinishedHookReceivesTerminalSnapshot(t *testing.T) {
	var mu sync.Mutex
	var got []jobs.Snapshot
	reg := newRegistry(t, jobs.WithFinishedHook(func(snap jobs.Snapshot) {
		mu.Lock()
		got = append(got, snap)
		mu.Unlock()
	}))

	id := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	reg.Complete(id, jobs.Result{Filename: "a.mp3", Token: "tok"})
	reg.Fail(id, "ignored second terminal call")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 {
		t.Fatalf("expected exactly one hook call, got %d", len(got))
	}
	if got[0].Status != jobs.StatusCompleted || got[0].Result == nil {
		t.Fatalf("unexpected hook snapshot: %#v", got[0])
	}
}

func TestCounts(t *testing.T) {
	reg := newRegistry(t)
	a := reg.Create("https://youtube.com/watch?v=a", "mp3", "")
	reg.Create("https://youtube.com/watch?v=b", "mp3", "")
	reg.Fail(a, "boom")

	active, terminal := reg.Counts()
	if active != 1 || terminal != 1 {
		t.Fatalf("unexpected counts: active=%d terminal=%d", active, terminal)
	}
}
