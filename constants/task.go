package constants

// Task identifies one of the model-backed planner operations.
type Task string

const (
	TaskReceipt                 Task = "receipt"
	TaskFamilyRecommendations   Task = "family_recommendations"
	TaskLeftoverRecommendations Task = "leftover_recommendations"
	TaskWeeklyMenu              Task = "weekly_menu"
	TaskMetrics                 Task = "metrics"
	TaskAsk                     Task = "ask"
	TaskPing                    Task = "ping"
)

var AllTasks = []Task{
	TaskReceipt,
	TaskFamilyRecommendations,
	TaskLeftoverRecommendations,
	TaskWeeklyMenu,
	TaskMetrics,
}

// Day tokens used by weekly menu plans, in order.
var Days = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Recipe difficulty values.
const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

var Difficulties = []string{DifficultyEasy, DifficultyMedium, DifficultyHard}

// Collection names used by the household store.
const (
	CollectionFamilyMembers       = "family_members"
	CollectionDietaryRestrictions = "dietary_restrictions"
	CollectionProhibitedDishes    = "prohibited_dishes"
	CollectionProducts            = "products"
	CollectionLeftovers           = "leftovers"
	CollectionWeeklyMenu          = "weekly_menu"
	CollectionMetrics             = "metrics"
	CollectionRecommendations     = "recommendations"
	CollectionShoppingList        = "shopping_list"
)
