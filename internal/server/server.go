package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	attendancedomain "github.com/thelesson/lessonbill/internal/attendance/domain"
	"github.com/thelesson/lessonbill/internal/config"
	contractdomain "github.com/thelesson/lessonbill/internal/contract/domain"
	invoicedomain "github.com/thelesson/lessonbill/internal/invoice/domain"
	notificationdomain "github.com/thelesson/lessonbill/internal/notification/domain"
	studentdomain "github.com/thelesson/lessonbill/internal/student/domain"
	"github.com/thelesson/lessonbill/internal/verification"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger(log))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	studentSvc      studentdomain.Service
	contractSvc     contractdomain.Service
	attendanceSvc   attendancedomain.Service
	invoiceSvc      invoicedomain.Service
	notificationSvc notificationdomain.Service
	verification    verification.Store
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	StudentSvc      studentdomain.Service
	ContractSvc     contractdomain.Service
	AttendanceSvc   attendancedomain.Service
	InvoiceSvc      invoicedomain.Service
	NotificationSvc notificationdomain.Service
	Verification    verification.Store
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		studentSvc:      p.StudentSvc,
		contractSvc:     p.ContractSvc,
		attendanceSvc:   p.AttendanceSvc,
		invoiceSvc:      p.InvoiceSvc,
		notificationSvc: p.NotificationSvc,
		verification:    p.Verification,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", s.UserRequired())

	// -------- Students --------
	api.GET("/students", s.ListStudents)
	api.POST("/students", s.CreateStudent)
	api.GET("/students/:id", s.GetStudentByID)
	api.PATCH("/students/:id", s.UpdateStudent)

	// -------- Contracts --------
	api.GET("/contracts", s.ListContracts)
	api.POST("/contracts", s.CreateContract)
	api.GET("/contracts/:id", s.GetContractByID)
	api.PATCH("/contracts/:id/status", s.UpdateContractStatus)
	api.POST("/contracts/:id/extensions", s.ExtendContract)

	// -------- Attendance --------
	api.GET("/attendance", s.ListAttendance)
	api.POST("/attendance", s.RecordAttendance)
	api.POST("/attendance/:id/void", s.VoidAttendance)
	api.POST("/attendance/:id/reschedule", s.RescheduleAttendance)

	// -------- Invoices --------
	api.GET("/invoices/sections", s.GetInvoiceSections)
	api.GET("/invoices/history", s.GetInvoiceHistory)
	api.GET("/invoices/:id", s.GetInvoiceByID)
	api.PATCH("/invoices/:id/adjustment", s.ApplyInvoiceAdjustment)
	api.POST("/invoices/:id/move-to-today", s.MoveInvoiceToToday)
	api.POST("/invoices/:id/recalculate", s.RecalculateInvoice)
	api.POST("/invoices/send", s.SendInvoices)

	// -------- Notifications --------
	api.GET("/notifications", s.ListNotifications)

	// -------- Phone verification --------
	api.POST("/verification/request", s.RequestVerificationCode)
	api.POST("/verification/confirm", s.ConfirmVerificationCode)
}
