package domain

import "time"

// Fact 是规则引擎评估促销附加条件时使用的事实数据
type Fact struct {
	Product   string    `json:"product"`
	Quantity  int       `json:"quantity"`
	Promotion string    `json:"promotion"`
	Now       time.Time `json:"now"`
}

// RuleEngine 定义了规则引擎的接口
type RuleEngine interface {
	Evaluate(ruleDefinition string, fact Fact) (bool, error)
}
