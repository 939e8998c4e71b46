package router

import (
	"net/http"

	"github.com/krishisangam/backend/internal/auth"
	"github.com/krishisangam/backend/internal/jobs"
	"github.com/krishisangam/backend/internal/middleware"
	"github.com/krishisangam/backend/internal/models"
	"github.com/krishisangam/backend/internal/notifications"
	"github.com/krishisangam/backend/internal/payments"
	"github.com/krishisangam/backend/internal/users"
	"github.com/krishisangam/backend/internal/workrequests"
)

// Deps carries the handlers and the auth middleware for route registration.
type Deps struct {
	Auth          *auth.Handler
	Users         *users.Handler
	Jobs          *jobs.Handler
	WorkRequests  *workrequests.Handler
	Payments      *payments.Handler
	Notifications *notifications.Handler

	// Protect authenticates the bearer token and loads the user into the
	// request context.
	Protect func(http.Handler) http.Handler
}

// New returns the API router. Public routes: auth, the open job board and
// the payment webhook. Everything else runs behind Protect, with role gates
// on farmer-only and labour-only routes.
func New(d Deps) http.Handler {
	mux := http.NewServeMux()
	const base = "/api/v1"

	farmer := middleware.RequireRoles(models.RoleFarmer)
	labour := middleware.RequireRoles(models.RoleLabour)

	open := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, h)
	}
	protected := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, d.Protect(h))
	}
	farmerOnly := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, d.Protect(farmer(h)))
	}
	labourOnly := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, d.Protect(labour(h)))
	}

	// Auth
	open("POST "+base+"/auth/register", d.Auth.Register)
	open("POST "+base+"/auth/login", d.Auth.Login)

	// Users
	protected("GET "+base+"/users/me", d.Users.GetMe)
	protected("PATCH "+base+"/users/me", d.Users.UpdateProfile)
	labourOnly("PUT "+base+"/users/bank-details", d.Users.UpdateBankDetails)
	farmerOnly("GET "+base+"/labour", d.Users.ListLabour)

	// Jobs and applications
	open("GET "+base+"/jobs", d.Jobs.ListOpen)
	farmerOnly("POST "+base+"/jobs", d.Jobs.Post)
	farmerOnly("GET "+base+"/jobs/my-jobs", d.Jobs.MyJobs)
	labourOnly("GET "+base+"/jobs/my-applications", d.Jobs.MyApplications)
	protected("GET "+base+"/jobs/{id}", d.Jobs.Get)
	farmerOnly("GET "+base+"/jobs/{id}/applicants", d.Jobs.Applicants)
	labourOnly("POST "+base+"/jobs/{id}/apply", d.Jobs.Apply)
	farmerOnly("POST "+base+"/jobs/{id}/accept/{labourId}", d.Jobs.Accept)
	farmerOnly("POST "+base+"/jobs/{id}/reject/{labourId}", d.Jobs.Reject)
	labourOnly("PATCH "+base+"/jobs/{id}/complete", d.Jobs.Complete)
	farmerOnly("DELETE "+base+"/jobs/{id}", d.Jobs.Delete)

	// Work requests
	farmerOnly("POST "+base+"/work-requests", d.WorkRequests.Send)
	farmerOnly("GET "+base+"/work-requests/sent", d.WorkRequests.ListSent)
	labourOnly("GET "+base+"/work-requests/received", d.WorkRequests.ListReceived)
	labourOnly("PATCH "+base+"/work-requests/{id}/respond", d.WorkRequests.Respond)
	farmerOnly("DELETE "+base+"/work-requests/{id}", d.WorkRequests.Cancel)

	// Payments and payouts
	farmerOnly("POST "+base+"/payments/create-order", d.Payments.CreateOrder)
	farmerOnly("POST "+base+"/payments/verify", d.Payments.Verify)
	protected("POST "+base+"/payments/{id}/transfer", d.Payments.Transfer)
	protected("GET "+base+"/payments/{id}/payout-status", d.Payments.PayoutStatus)
	protected("GET "+base+"/payments/job/{jobId}", d.Payments.JobPayment)
	farmerOnly("GET "+base+"/payments/my-payments", d.Payments.MyPayments)
	labourOnly("GET "+base+"/payments/received", d.Payments.Received)
	open("POST "+base+"/payments/webhook", d.Payments.Webhook)

	// Notifications
	protected("GET "+base+"/notifications", d.Notifications.List)
	protected("GET "+base+"/notifications/unread-count", d.Notifications.UnreadCount)
	protected("PATCH "+base+"/notifications/read-all", d.Notifications.MarkAllRead)
	protected("PATCH "+base+"/notifications/{id}/read", d.Notifications.MarkRead)
	protected("DELETE "+base+"/notifications/{id}", d.Notifications.Delete)

	return mux
}
