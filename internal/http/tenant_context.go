package httpapi

import (
	"context"
	"net/http"
	"strings"

	"residence-data/internal/domain"
	"residence-data/internal/repository"
)

const defaultActor = "system"

// resourceKind 用于扩展权限调用方按资源 id 反查租户
type resourceKind int

const (
	resourceNone resourceKind = iota
	resourceHousing
	resourceRoom
	resourceBed
	resourceOccupancy
)

// requestContext 当前请求的租户与操作人
type requestContext struct {
	TenantID string
	Actor    string
	Extended bool
}

// TenantContext 解析 tenant_id / X-Tenant-Id / X-User-Id / X-User-Role
type TenantContext struct {
	resolver repository.TenantResolver // 可为 nil
}

func NewTenantContext(resolver repository.TenantResolver) *TenantContext {
	return &TenantContext{resolver: resolver}
}

func extendedAccess(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("X-User-Role"), "SystemAdmin") ||
		strings.EqualFold(r.Header.Get("X-Extended-Access"), "true")
}

// Resolve 租户优先取 query，其次 header；
// 扩展权限且未带租户时，按资源 id 从数据反查
func (c *TenantContext) Resolve(ctx context.Context, r *http.Request, kind resourceKind, resourceID string) (requestContext, error) {
	rc := requestContext{Actor: r.Header.Get("X-User-Id"), Extended: extendedAccess(r)}
	if rc.Actor == "" {
		rc.Actor = defaultActor
	}

	if tid := r.URL.Query().Get("tenant_id"); tid != "" {
		rc.TenantID = tid
		return rc, nil
	}
	if tid := r.Header.Get("X-Tenant-Id"); tid != "" && tid != "null" {
		rc.TenantID = tid
		return rc, nil
	}
	if !rc.Extended || kind == resourceNone || resourceID == "" || c.resolver == nil {
		return rc, domain.Validationf("tenant_id is required")
	}

	tid, err := c.lookup(ctx, kind, resourceID)
	if err != nil {
		return rc, err
	}
	rc.TenantID = tid
	return rc, nil
}

func (c *TenantContext) lookup(ctx context.Context, kind resourceKind, id string) (string, error) {
	switch kind {
	case resourceHousing:
		return c.resolver.TenantIDByHousingID(ctx, id)
	case resourceRoom:
		return c.resolver.TenantIDByRoomID(ctx, id)
	case resourceBed:
		return c.resolver.TenantIDByBedID(ctx, id)
	case resourceOccupancy:
		return c.resolver.TenantIDByOccupancyID(ctx, id)
	}
	return "", domain.Validationf("tenant_id is required")
}
