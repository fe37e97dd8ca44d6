package session

// Roles known to the marketplace
const (
	RoleCandidate = "candidate"
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

// LandingRoute is where a user goes after signing in
func LandingRoute(role string) string {
	switch role {
	case RoleCandidate:
		return "/candidate-dashboard"
	case RoleRecruiter:
		return "/recruiter-dashboard"
	case RoleAdmin:
		return "/admin"
	default:
		return "/dashboard"
	}
}
