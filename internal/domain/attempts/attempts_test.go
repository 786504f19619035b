package attempts_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/aireview/internal/domain/attempts"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryTracker(t *testing.T) {
	Convey("Given an in-memory attempt tracker", t, func() {
		ctx := context.Background()

		Convey("When a key is recorded repeatedly", func() {
			tr := attempts.NewInMemoryTracker()

			Convey("Then the count increases by one each time", func() {
				So(tr.Record(ctx, "msg-1"), ShouldEqual, 1)
				So(tr.Record(ctx, "msg-1"), ShouldEqual, 2)
				So(tr.Record(ctx, "msg-1"), ShouldEqual, 3)
				So(tr.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is forgotten", func() {
			tr := attempts.NewInMemoryTracker()
			tr.Record(ctx, "msg-1")
			tr.Record(ctx, "msg-1")
			tr.Forget(ctx, "msg-1")

			Convey("Then counting restarts", func() {
				So(tr.Size(), ShouldEqual, 0)
				So(tr.Record(ctx, "msg-1"), ShouldEqual, 1)
			})

			Convey("Then forgetting an unknown key is a no-op", func() {
				tr.Forget(ctx, "missing")
				So(tr.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the bound is reached", func() {
			tr := attempts.NewInMemoryTracker(attempts.WithMaxSize(2))
			tr.Record(ctx, "a")
			tr.Record(ctx, "b")
			tr.Record(ctx, "a")
			tr.Record(ctx, "c")

			Convey("Then the least recently touched key is evicted", func() {
				So(tr.Size(), ShouldEqual, 2)
				So(tr.Record(ctx, "a"), ShouldEqual, 3)
				So(tr.Record(ctx, "b"), ShouldEqual, 1)
			})
		})

		Convey("When the tracker is unbounded", func() {
			tr := attempts.NewInMemoryTracker(attempts.WithMaxSize(0))
			for i := 0; i < 500; i++ {
				tr.Record(ctx, fmt.Sprintf("k-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(tr.Size(), ShouldEqual, 500)
			})
		})

		Convey("When many goroutines record the same key", func() {
			tr := attempts.NewInMemoryTracker()
			var wg sync.WaitGroup
			for i := 0; i < 50; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					tr.Record(ctx, "shared")
				}()
			}
			wg.Wait()

			Convey("Then every increment is counted", func() {
				So(tr.Record(ctx, "shared"), ShouldEqual, 51)
			})
		})
	})
}
