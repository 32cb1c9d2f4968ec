package utils

import (
	"testing"
	"time"
)

func Test_Watch(t *testing.T) {
	watch := Watch{}

	watch.Start()
	time.Sleep(200 * time.Millisecond)
	dur := watch.Elapsed()
	if !FloatEquals(dur.Seconds(), 0.2, 0.05) {
		t.Error("seconds mismatch", dur.Seconds())
	}
	watch.Start()
	if watch.Elapsed() > dur {
		t.Error("restart kept the old start", watch.Elapsed())
	}
}

func Test_WatchLap(t *testing.T) {
	watch := Watch{}
	watch.Start()
	time.Sleep(100 * time.Millisecond)
	lap := watch.Lap("first")
	if !FloatEquals(lap.Seconds(), 0.1, 0.05) {
		t.Error("first lap mismatch", lap.Seconds())
	}
	lap2 := watch.Lap("second")
	if lap2 > lap {
		t.Error("second lap should restart from the first", lap2, lap)
	}
	if watch.Elapsed() < lap {
		t.Error("elapsed is shorter than a lap", watch.Elapsed(), lap)
	}
}
