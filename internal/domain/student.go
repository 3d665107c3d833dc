package domain

// Student 学生（外部身份系统拥有；这里只读）
type Student struct {
	StudentID string `db:"student_id" json:"student_id"`
	TenantID  string `db:"tenant_id" json:"tenant_id"`
	FullName  string `db:"full_name" json:"full_name"`
	Email     string `db:"email" json:"email,omitempty"`
}
