package main

import (
	"context"
	"testing"

	"github.com/okian/aireview/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestSetupTracing(t *testing.T) {
	convey.Convey("Given tracing configuration", t, func() {
		ctx := context.Background()

		convey.Convey("When no exporter is configured", func() {
			tp, err := setupTracing(ctx, config.Tracing{ServiceName: "aireview", SampleRatio: 1})
			convey.So(err, convey.ShouldBeNil)
			convey.So(tp.Exporter(), convey.ShouldEqual, "none")
			convey.So(tp.Shutdown(ctx), convey.ShouldBeNil)
		})

		convey.Convey("When console export is requested", func() {
			tp, err := setupTracing(ctx, config.Tracing{ServiceName: "aireview", Console: true, Endpoint: "collector:4318"})
			convey.So(err, convey.ShouldBeNil)
			convey.So(tp.Exporter(), convey.ShouldEqual, "console")
			convey.So(tp.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the system metrics updater", t, func() {
		convey.So(func() { updateSystemMetrics() }, convey.ShouldNotPanic)
	})
}
