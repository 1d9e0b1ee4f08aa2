package models

type SubscriptionPlan string

const (
	FreePlan       SubscriptionPlan = "FREE"
	StarterPlan    SubscriptionPlan = "STARTER"
	ProPlan        SubscriptionPlan = "PRO"
	EnterprisePlan SubscriptionPlan = "ENTERPRISE"
)
