package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/thelesson/lessonbill/internal/attendance"
	"github.com/thelesson/lessonbill/internal/clock"
	"github.com/thelesson/lessonbill/internal/config"
	"github.com/thelesson/lessonbill/internal/contract"
	"github.com/thelesson/lessonbill/internal/invoice"
	"github.com/thelesson/lessonbill/internal/logger"
	"github.com/thelesson/lessonbill/internal/metrics"
	"github.com/thelesson/lessonbill/internal/migration"
	"github.com/thelesson/lessonbill/internal/notification"
	"github.com/thelesson/lessonbill/internal/server"
	"github.com/thelesson/lessonbill/internal/student"
	"github.com/thelesson/lessonbill/internal/verification"
	"github.com/thelesson/lessonbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,
		migration.Module,

		// Functional Domains
		student.Module,
		contract.Module,
		attendance.Module,
		invoice.Module,
		notification.Module,
		verification.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
