//go:build !darwin

package screen

// CheckPermission 非 macOS 平台无需截屏授权
func CheckPermission() bool {
	return true
}

// OpenPermissionSettings 非 macOS 平台无操作
func OpenPermissionSettings() {}

// PermissionInstructions 非 macOS 平台返回空
func PermissionInstructions() string {
	return ""
}
