package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"residence-data/internal/domain"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPStudentDirectory 外部学生目录服务客户端
// GET {base}/tenants/{tenant_id}/students/{student_id}
type HTTPStudentDirectory struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

type studentDTO struct {
	StudentID string `json:"student_id"`
	TenantID  string `json:"tenant_id"`
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
}

func NewHTTPStudentDirectory(baseURL string, timeout time.Duration, logger *zap.Logger) *HTTPStudentDirectory {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(1 * time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPStudentDirectory{httpClient: client, logger: logger}
}

func (d *HTTPStudentDirectory) GetStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error) {
	var out studentDTO
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"tenant_id": tenantID, "student_id": studentID}).
		SetResult(&out).
		Get("/tenants/{tenant_id}/students/{student_id}")
	if err != nil {
		d.logger.Warn("student directory request failed",
			zap.String("tenant_id", tenantID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		return nil, domain.Unavailable(err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return nil, domain.NotFoundf("student not found: student_id=%s", studentID)
	case resp.IsError():
		return nil, domain.Unavailable(fmt.Errorf("student directory status %d", resp.StatusCode()))
	}
	if out.TenantID != "" && out.TenantID != tenantID {
		return nil, domain.NotFoundf("student not found: student_id=%s", studentID)
	}
	return &domain.Student{
		StudentID: studentID,
		TenantID:  tenantID,
		FullName:  out.FullName,
		Email:     out.Email,
	}, nil
}

// StudentStore 本地 students 表（occupancies.student_id 外键指向它）
type StudentStore interface {
	UpsertStudent(ctx context.Context, s *domain.Student) error
}

// SyncedStudentDirectory 先查外部目录，再把结果写入本地表
// 写入在分配事务开始前完成，占用记录的外键与姓名搜索依赖这份副本
type SyncedStudentDirectory struct {
	remote StudentDirectory
	local  StudentStore
	logger *zap.Logger
}

func NewSyncedStudentDirectory(remote StudentDirectory, local StudentStore, logger *zap.Logger) *SyncedStudentDirectory {
	return &SyncedStudentDirectory{remote: remote, local: local, logger: logger}
}

func (d *SyncedStudentDirectory) GetStudent(ctx context.Context, tenantID, studentID string) (*domain.Student, error) {
	st, err := d.remote.GetStudent(ctx, tenantID, studentID)
	if err != nil {
		return nil, err
	}
	if err := d.local.UpsertStudent(ctx, st); err != nil {
		d.logger.Warn("student sync failed",
			zap.String("tenant_id", tenantID),
			zap.String("student_id", studentID),
			zap.Error(err),
		)
		if domain.KindOf(err) == "" {
			err = domain.Unavailable(err)
		}
		return nil, err
	}
	return st, nil
}
