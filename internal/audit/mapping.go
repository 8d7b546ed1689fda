package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// Auth methods whose audit action differs from the lowercased method name.
var authActions = map[string]string{
	"RefreshToken":         "refresh",
	"ForgotPassword":       "password_reset_requested",
	"ResetPassword":        "password_reset",
	"UpdatePassword":       "password_changed",
	"RequestVerifyAccount": "verification_requested",
	"VerifyAccount":        "verified",
	"GetOAuthURL":          "oauth_started",
	"OAuthCallback":        "oauth_login",
}

// ParseFullMethod returns action and resource for a gRPC full method
// (e.g. /auth.v1.AuthService/Login -> login on auth).
func ParseFullMethod(fullMethod string) ActionResource {
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	resource := serviceToResource(beforeSlash[dot+1:])
	if a, ok := authActions[method]; ok && resource == "auth" {
		return ActionResource{Action: a, Resource: resource}
	}
	return ActionResource{Action: methodToAction(method), Resource: resource}
}

func serviceToResource(serviceName string) string {
	// AuthService -> auth, DirectoryService -> directory
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

func methodToAction(method string) string {
	switch {
	case strings.HasPrefix(method, "Get") && method != "Get":
		return "get"
	case strings.HasPrefix(method, "Create"):
		return "create"
	case strings.HasPrefix(method, "Update"):
		return "update"
	case strings.HasPrefix(method, "Register"):
		return "register"
	case strings.HasPrefix(method, "Revoke"):
		return "revoke"
	default:
		return strings.ToLower(method)
	}
}
