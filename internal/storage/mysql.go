package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"resume-search-go/internal/config"
	"resume-search-go/internal/storage/models"
	"resume-search-go/internal/types"
)

var mysqlTracer = otel.Tracer("resume-search-go/storage/mysql")

// GormTracingPlugin GORM插件，为数据库操作创建OpenTelemetry span
type GormTracingPlugin struct {
	tracer   trace.Tracer
	dbName   string
	dbSystem string
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	type hook struct {
		op       string
		register func() error
	}
	hooks := []hook{
		{"SELECT", func() error {
			if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
				return err
			}
			return cb.Query().After("gorm:query").Register("otel:after_query", p.after())
		}},
		{"CREATE", func() error {
			if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
				return err
			}
			return cb.Create().After("gorm:create").Register("otel:after_create", p.after())
		}},
		{"UPDATE", func() error {
			if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
				return err
			}
			return cb.Update().After("gorm:update").Register("otel:after_update", p.after())
		}},
		{"DELETE", func() error {
			if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
				return err
			}
			return cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after())
		}},
	}

	for _, h := range hooks {
		if err := h.register(); err != nil {
			return fmt.Errorf("注册%s追踪回调失败: %w", h.op, err)
		}
	}
	return nil
}

func (p *GormTracingPlugin) before(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		ctx, span := p.tracer.Start(db.Statement.Context, "gorm."+operation,
			trace.WithSpanKind(trace.SpanKindClient))
		span.SetAttributes(
			semconv.DBSystemMySQL,
			attribute.String("db.name", p.dbName),
			attribute.String("db.operation", operation),
		)
		db.Statement.Context = ctx
	}
}

func (p *GormTracingPlugin) after() func(*gorm.DB) {
	return func(db *gorm.DB) {
		span := trace.SpanFromContext(db.Statement.Context)
		defer span.End()

		if db.Statement.Table != "" {
			span.SetAttributes(attribute.String("db.sql.table", db.Statement.Table))
		}
		span.SetAttributes(attribute.Int64("db.rows_affected", db.RowsAffected))

		if db.Error != nil && db.Error != gorm.ErrRecordNotFound {
			span.RecordError(db.Error)
			span.SetStatus(codes.Error, db.Error.Error())
		}
	}
}

// MySQL 关系型存储适配器
type MySQL struct {
	db *gorm.DB
}

// NewMySQL 建立MySQL连接并安装追踪插件
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mysql配置不能为空")
	}

	logLevel := gormlogger.Warn
	switch cfg.LogLevel {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "info":
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	plugin := &GormTracingPlugin{
		tracer:   mysqlTracer,
		dbName:   cfg.Database,
		dbSystem: "mysql",
	}
	if err := db.Use(plugin); err != nil {
		return nil, fmt.Errorf("安装GORM追踪插件失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层sql.DB失败: %w", err)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifeMins > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeMins) * time.Minute)
	}

	return &MySQL{db: db}, nil
}

// DB 暴露底层gorm.DB（测试用）
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭连接池
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// FindResumesByTokens 查询内容、文件名或邮箱包含任一token的简历，最多limit条。
// token在SQL层做大小写不敏感的LIKE匹配，精确计分由关键词引擎完成。
func (m *MySQL) FindResumesByTokens(ctx context.Context, tokens []string, limit int) ([]types.ResumeRecord, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("关键词不能为空")
	}
	if limit <= 0 {
		limit = 10
	}

	query := m.db.WithContext(ctx).Model(&models.Resume{})

	var conds []string
	var args []interface{}
	for _, tok := range tokens {
		pattern := "%" + escapeLike(tok) + "%"
		conds = append(conds, "(full_content LIKE ? OR file_name LIKE ? OR email LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}
	query = query.Where(strings.Join(conds, " OR "), args...)

	var rows []models.Resume
	if err := query.Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("按关键词查询简历失败: %w", err)
	}

	records := make([]types.ResumeRecord, 0, len(rows))
	for _, r := range rows {
		records = append(records, types.ResumeRecord{
			FileName:    r.FileName,
			Email:       r.Email,
			PhoneNumber: r.PhoneNumber,
			FullContent: r.FullContent,
			ProcessedAt: r.ProcessedAt,
		})
	}
	return records, nil
}

// escapeLike 转义LIKE模式中的特殊字符
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
