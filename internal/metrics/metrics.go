// Package metrics регистрирует счётчики Prometheus основного сервиса.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// QuestionsAsked — созданные вопросы, по тарифу.
	QuestionsAsked = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonq_questions_asked_total",
		Help: "Created questions by tier.",
	}, []string{"tier"})

	// AnswersRecorded — попытки записать ответ, по результату
	// (ok, already_answered, no_match).
	AnswersRecorded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonq_answers_recorded_total",
		Help: "Answer attempts by result.",
	}, []string{"result"})

	// ReferralsCredited — зачтённые реферальные бонусы.
	ReferralsCredited = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonq_referrals_credited_total",
		Help: "Referral credits applied.",
	})

	// PaymentsProcessed — подтверждения платежей, по исходу
	// (granted, completed, duplicate, unmatched).
	PaymentsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonq_payments_processed_total",
		Help: "Payment confirmations by outcome.",
	}, []string{"outcome"})
)

func init() {
	prometheus.MustRegister(QuestionsAsked, AnswersRecorded, ReferralsCredited, PaymentsProcessed)
}
