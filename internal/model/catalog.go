package model

// Module is a named subdivision of a course with its fixed topic list.
type Module struct {
	Topics      []string `json:"topics"`
	TopicsCount int      `json:"topics_count"`
	LastUpdated string   `json:"last_updated,omitempty"`
	Program     string   `json:"program"`
	Level       string   `json:"level"`
}

// Course groups modules under one course name.
type Course struct {
	TotalModules int               `json:"total_modules"`
	Modules      map[string]Module `json:"modules"`
}

// Catalog is the hierarchically indexed course → module → topics cache.
type Catalog struct {
	Courses map[string]Course `json:"courses"`
}

// Selection is the learner's persisted course/module/topic choice.
type Selection struct {
	Course string   `json:"course"`
	Module string   `json:"module"`
	Topics []string `json:"topics"`
}

// TopicEntry is one module row as served by the topics listing endpoint.
type TopicEntry struct {
	Program     string   `json:"program"`
	Level       string   `json:"level"`
	Course      string   `json:"course"`
	Module      string   `json:"module"`
	Topics      []string `json:"topics"`
	LastUpdated string   `json:"last_updated,omitempty"`
}

// TopicsList is the wire shape of the full topics listing.
type TopicsList struct {
	TotalModules int          `json:"total_modules"`
	Modules      []TopicEntry `json:"modules"`
}
