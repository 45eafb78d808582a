package core

import "time"

// DateLayout 是迁入日期在展示记录中的格式。
const DateLayout = "2006-01-02"

// FilterSpec 是用户声明的筛选条件（硬约束）。
//
// 大学、职业两个条件是可选的，分别由 FilterUniversity / FilterProfession 开关控制。
type FilterSpec struct {
	City             string    `json:"city" yaml:"city" validate:"required"`
	MoveInStart      time.Time `json:"move_in_start" yaml:"move_in_start" validate:"required"`
	MoveInEnd        time.Time `json:"move_in_end" yaml:"move_in_end" validate:"required,gtefield=MoveInStart"`
	AgeMin           int       `json:"age_min" yaml:"age_min" validate:"gte=0"`
	AgeMax           int       `json:"age_max" yaml:"age_max" validate:"gtefield=AgeMin"`
	RentMin          int       `json:"rent_min" yaml:"rent_min" validate:"gte=0"`
	RentMax          int       `json:"rent_max" yaml:"rent_max" validate:"gtefield=RentMin"`
	University       string    `json:"university,omitempty" yaml:"university" validate:"required_if=FilterUniversity true"`
	Profession       string    `json:"profession,omitempty" yaml:"profession" validate:"required_if=FilterProfession true"`
	FilterUniversity bool      `json:"filter_university" yaml:"filter_university"`
	FilterProfession bool      `json:"filter_profession" yaml:"filter_profession"`
}

// UserRecord 是过滤与展示所需的用户资料。
//
// Age / Rent / City / Profession / University / MoveIn* 是用户自身属性，参与他人的属性过滤；
// Filters 是该用户为自己声明的筛选条件。
type UserRecord struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Age         int        `json:"age"`
	Rent        int        `json:"rent"`
	City        string     `json:"city"`
	Profession  string     `json:"profession"`
	University  string     `json:"university"`
	MoveInStart time.Time  `json:"move_in_start"`
	MoveInEnd   time.Time  `json:"move_in_end"`
	Features    []string   `json:"features"`
	Filters     FilterSpec `json:"filters"`
	Bio         string     `json:"bio"`
	Duration    string     `json:"duration"`
	ContactInfo string     `json:"contact_info"`
	Geo         string     `json:"geo"` // 通勤等时圈 GeoJSON，由外部服务提供
	CreatedAt   time.Time  `json:"created_at"`
}

// Profile 是推荐卡片的展示记录。
type Profile struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	Features     []string  `json:"features"`
	RentFilter   [2]int    `json:"rent_filter"`
	MovingFilter [2]string `json:"moving_filter"`
	University   string    `json:"university"`
	City         string    `json:"city"`
	Profession   string    `json:"profession"`
	Bio          string    `json:"bio"`
	Duration     string    `json:"duration"`
	Geo          string    `json:"geo"`
}

// Profile 把用户资料转换成展示记录（城市/大学/职业取自用户声明的筛选条件）。
func (u UserRecord) Profile() Profile {
	features := make([]string, len(u.Features))
	copy(features, u.Features)
	return Profile{
		ID:         u.ID,
		Name:       u.Name,
		Age:        u.Age,
		Features:   features,
		RentFilter: [2]int{u.Filters.RentMin, u.Filters.RentMax},
		MovingFilter: [2]string{
			u.Filters.MoveInStart.Format(DateLayout),
			u.Filters.MoveInEnd.Format(DateLayout),
		},
		University: u.Filters.University,
		City:       u.Filters.City,
		Profession: u.Filters.Profession,
		Bio:        u.Bio,
		Duration:   u.Duration,
		Geo:        u.Geo,
	}
}

// Candidate 是属性过滤的一行结果：候选人以及请求者是否已经对其表态。
type Candidate struct {
	ID         int64
	Interacted bool
}

// CandidatePool 是属性过滤的结果。
//
// AllUsers 用于寻找协同过滤邻居；NonInteracted 是真正可推荐的子集。
type CandidatePool struct {
	AllUsers      []int64
	NonInteracted []int64
}

// CacheEntry 是持久化的推荐结果，每个用户一条，生成时整体覆盖。
type CacheEntry struct {
	UserID      int64     `json:"user_id"`
	IDs         []int64   `json:"ids"`
	LastUpdated time.Time `json:"last_updated"`
}
