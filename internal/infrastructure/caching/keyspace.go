package caching

// The cache is scoped to the application's fixed resource set, so the key
// families live here next to the store rather than in a generic layer.

// Resource names.
const (
	ResourceCases         = "cases"
	ResourceMotions       = "motions"
	ResourceOrders        = "orders"
	ResourceDocuments     = "documents"
	ResourceNotifications = "notifications"
	ResourceChat          = "chat"
	ResourceStaff         = "staff"
	ResourceCalendar      = "calendar"
)

// Scopes within a resource.
const (
	ScopeList   = "list"
	ScopeDetail = "detail"
	ScopeUnread = "unread"
)

func CasesList(filters map[string]string) Key {
	return Key{Resource: ResourceCases, Scope: ScopeList, Filters: filters}
}

func CaseDetail(id string) Key {
	return Key{Resource: ResourceCases, Scope: ScopeDetail, ID: id}
}

func MotionsList(filters map[string]string) Key {
	return Key{Resource: ResourceMotions, Scope: ScopeList, Filters: filters}
}

// PendingMotions is the approval queue; a list variant with a fixed filter.
func PendingMotions() Key {
	return Key{Resource: ResourceMotions, Scope: ScopeList, Filters: map[string]string{"status": "pending"}}
}

func MotionDetail(id string) Key {
	return Key{Resource: ResourceMotions, Scope: ScopeDetail, ID: id}
}

func OrdersList(filters map[string]string) Key {
	return Key{Resource: ResourceOrders, Scope: ScopeList, Filters: filters}
}

func OrderDetail(id string) Key {
	return Key{Resource: ResourceOrders, Scope: ScopeDetail, ID: id}
}

func CaseDocuments(caseID string) Key {
	return Key{Resource: ResourceDocuments, Scope: ScopeList, ID: caseID}
}

func NotificationsList() Key {
	return Key{Resource: ResourceNotifications, Scope: ScopeList}
}

func NotificationsUnread() Key {
	return Key{Resource: ResourceNotifications, Scope: ScopeUnread}
}

func Conversations() Key {
	return Key{Resource: ResourceChat, Scope: ScopeList}
}

func ConversationMessages(conversationID string) Key {
	return Key{Resource: ResourceChat, Scope: ScopeDetail, ID: conversationID}
}

func ChatUnread() Key {
	return Key{Resource: ResourceChat, Scope: ScopeUnread}
}

func StaffDirectory() Key {
	return Key{Resource: ResourceStaff, Scope: ScopeList}
}

func Calendar(filters map[string]string) Key {
	return Key{Resource: ResourceCalendar, Scope: ScopeList, Filters: filters}
}

// Prefix families used by the invalidation tables.

func CasesPrefix() Prefix         { return Prefix{Resource: ResourceCases} }
func CasesListPrefix() Prefix     { return Prefix{Resource: ResourceCases, Scope: ScopeList} }
func CaseDetailPrefix(id string) Prefix {
	return Prefix{Resource: ResourceCases, Scope: ScopeDetail, ID: id}
}
func MotionsPrefix() Prefix       { return Prefix{Resource: ResourceMotions} }
func MotionsListPrefix() Prefix   { return Prefix{Resource: ResourceMotions, Scope: ScopeList} }
func MotionDetailPrefix(id string) Prefix {
	return Prefix{Resource: ResourceMotions, Scope: ScopeDetail, ID: id}
}
func OrdersPrefix() Prefix        { return Prefix{Resource: ResourceOrders} }
func DocumentsPrefix() Prefix     { return Prefix{Resource: ResourceDocuments} }
func NotificationsPrefix() Prefix { return Prefix{Resource: ResourceNotifications} }
func ChatPrefix() Prefix          { return Prefix{Resource: ResourceChat} }
func StaffPrefix() Prefix         { return Prefix{Resource: ResourceStaff} }
func CalendarPrefix() Prefix      { return Prefix{Resource: ResourceCalendar} }
