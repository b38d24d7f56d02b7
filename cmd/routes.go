package cmd

import (
	"net/http"

	"mjolobid-backend/internal/handlers"
	"mjolobid-backend/internal/middleware"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

type routes struct {
	users         *handlers.UserHandler
	bids          *handlers.BidHandler
	offers        *handlers.OfferHandler
	payments      *handlers.PaymentHandler
	messages      *handlers.MessageHandler
	notifications *handlers.NotificationHandler
	admin         *handlers.AdminHandler
	ws            *handlers.WebSocketHandler
	auth          middleware.TokenValidator
}

func newRouter(h routes) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/auth/register", h.users.Register)
		r.Post("/auth/verify", h.users.VerifyEmail)
		r.Post("/auth/verify/resend", h.users.ResendVerification)
		r.Post("/auth/login", h.users.Login)
		r.Post("/auth/password/reset", h.users.RequestPasswordReset)
		r.Post("/auth/password/confirm", h.users.ResetPassword)
		r.Get("/categories", h.bids.Categories)
		r.Get("/payments/gateways", h.payments.Gateways)
		r.Post("/payments/webhooks/{gateway}", h.payments.Webhook)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(h.auth))

			r.Route("/users", func(r chi.Router) {
				r.Get("/me", h.users.Me)
				r.Patch("/me", h.users.UpdateProfile)
				r.Put("/me/location", h.users.UpdateLocation)
				r.Put("/me/push-token", h.users.SetPushToken)
				r.Post("/me/picture", h.users.ProfilePictureUpload)
				r.Get("/me/affiliate", h.users.Affiliate)
				r.Get("/{user_id}", h.users.PublicProfile)
				r.Post("/{user_id}/rating", h.users.RateUser)
			})

			r.Route("/bids", func(r chi.Router) {
				r.Get("/", h.bids.Browse)
				r.Post("/", h.bids.Create)
				r.Get("/mine", h.bids.MyBids)
				r.Get("/accepted", h.bids.MyAcceptances)
				r.Get("/{bid_id}", h.bids.Get)
				r.Post("/{bid_id}/accept", h.bids.Accept)
				r.Delete("/{bid_id}/accept", h.bids.WithdrawAcceptance)
				r.Get("/{bid_id}/acceptances", h.bids.ListAcceptances)
				r.Post("/{bid_id}/choose", h.bids.Choose)
				r.Post("/{bid_id}/complete", h.bids.Complete)
				r.Post("/{bid_id}/cancel", h.bids.Cancel)
				r.Post("/{bid_id}/boost", h.bids.Boost)
				r.Post("/{bid_id}/review", h.bids.Review)
				r.Post("/{bid_id}/images", h.bids.ImageUpload)
			})

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", h.offers.Browse)
				r.Post("/", h.offers.Create)
				r.Get("/mine", h.offers.MyOffers)
				r.Get("/bids/mine", h.offers.MyBids)
				r.Get("/{offer_id}", h.offers.Get)
				r.Put("/{offer_id}", h.offers.Update)
				r.Delete("/{offer_id}", h.offers.Delete)
				r.Post("/{offer_id}/cancel", h.offers.Cancel)
				r.Get("/{offer_id}/bids", h.offers.ListBids)
				r.Post("/{offer_id}/bids", h.offers.PlaceBid)
				r.Delete("/{offer_id}/bids", h.offers.WithdrawBid)
				r.Post("/{offer_id}/choose", h.offers.ChooseBid)
				r.Post("/{offer_id}/complete", h.offers.Complete)
				r.Post("/{offer_id}/boost", h.offers.Boost)
			})

			r.Get("/wallet", h.payments.Wallet)
			r.Get("/wallet/transactions", h.payments.History)
			r.Get("/payment-methods", h.payments.PaymentMethods)
			r.Post("/payment-methods", h.payments.AddPaymentMethod)
			r.Post("/payment-methods/{method_id}/primary", h.payments.SetPrimaryPaymentMethod)
			r.Delete("/payment-methods/{method_id}", h.payments.DeletePaymentMethod)
			r.Post("/payments/deposit", h.payments.Deposit)
			r.Post("/payments/subscribe", h.payments.Subscribe)
			r.Post("/payments/{reference}/verify", h.payments.Verify)
			r.Get("/subscriptions", h.payments.Subscriptions)
			r.Get("/withdrawals", h.payments.Withdrawals)
			r.Post("/withdrawals", h.payments.Withdraw)
			r.Get("/escrow/{subject_type}/{subject_id}", h.payments.Escrow)

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", h.messages.Conversations)
				r.Post("/", h.messages.StartConversation)
				r.Get("/unread", h.messages.UnreadCount)
				r.Get("/{conversation_id}/messages", h.messages.Messages)
				r.Post("/{conversation_id}/messages", h.messages.Send)
				r.Post("/{conversation_id}/attachments", h.messages.AttachmentUpload)
				r.Get("/{conversation_id}/typing", h.messages.Typing)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.notifications.List)
				r.Get("/unread", h.notifications.UnreadCount)
				r.Post("/read", h.notifications.MarkAllRead)
				r.Post("/{notification_id}/read", h.notifications.MarkRead)
				r.Get("/settings", h.notifications.Settings)
				r.Put("/settings", h.notifications.UpdateSettings)
				r.Post("/test-push", h.notifications.TestPush)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.AdminOnly)
				r.Get("/dashboard", h.admin.Dashboard)
				r.Get("/users", h.admin.Users)
				r.Post("/users/{user_id}/toggle-active", h.admin.ToggleActive)
				r.Post("/users/{user_id}/toggle-verified", h.admin.ToggleVerified)
				r.Get("/withdrawals", h.admin.PendingWithdrawals)
				r.Post("/withdrawals/{withdrawal_id}/complete", h.admin.CompleteWithdrawal)
				r.Post("/withdrawals/{withdrawal_id}/fail", h.admin.FailWithdrawal)
				r.Post("/broadcast", h.admin.Broadcast)
				r.Post("/notify-staff", h.admin.NotifyStaff)
				r.Post("/categories", h.admin.CreateCategory)
				r.Get("/transactions", h.admin.RecentTransactions)
			})
		})
	})

	// WebSocket route
	r.Get("/ws", h.ws.HandleWebSocket)

	return r
}

// corsMiddleware handles CORS
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
