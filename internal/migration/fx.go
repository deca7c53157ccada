package migration

import (
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/config"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	notificationdomain "github.com/thelesson/lessonbill/internal/notification/domain"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if cfg.DBType != "postgres" {
			// sqlite is only used for local runs; schema comes from the models.
			return conn.AutoMigrate(
				&studentdomain.Student{},
				&contractdomain.Contract{},
				&attendancedomain.AttendanceLog{},
				&invoicedomain.Invoice{},
				&notificationdomain.Notification{},
			)
		}

		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return RunMigrations(sqlDB)
	}),
)
