// Package agent はエージェント設定の型と永続化を提供します。
package agent

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidConfig は作成リクエストの検証エラーです。
	ErrInvalidConfig = errors.New("agent: invalid config")
	// ErrNotFound はエージェント行が存在しない場合のエラーです。
	ErrNotFound = errors.New("agent: not found")
	// ErrAlreadyExists は同じ ID の行が既に存在する場合のエラーです。
	ErrAlreadyExists = errors.New("agent: already exists")
)

// Model はエージェントが利用する言語モデルの種別です。
type Model string

const (
	ModelOpenAI   Model = "openai"
	ModelClaude   Model = "claude"
	ModelDeepSeek Model = "deepseek"
)

// 既定値
const (
	DefaultModel             = ModelClaude
	DefaultUserMessageColor  = "#F0F9FF"
	DefaultAgentMessageColor = "#E0F2FE"
)

// Status はエージェント行のライフサイクルです。
type Status string

const (
	StatusStoring    Status = "storing_initial_config"
	StatusConfigured Status = "configured"
	StatusDeployed   Status = "deployed"
	StatusActive     Status = "active"
)

// Asset はアップロード済みファイルへの参照です。
type Asset struct {
	Name string `json:"name" yaml:"name"`
	Size int64  `json:"size" yaml:"size"`
	Type string `json:"type" yaml:"type"`
	URL  string `json:"url" yaml:"url"`
}

// Config はエージェント作成リクエストのスナップショットです。
type Config struct {
	Name              string   `json:"agentName" yaml:"agent_name"`
	OwnerID           string   `json:"userId" yaml:"user_id"`
	Description       string   `json:"description" yaml:"description"`
	PrimaryModel      Model    `json:"primaryModel" yaml:"primary_model"`
	FallbackModel     Model    `json:"fallbackModel" yaml:"fallback_model"`
	SystemPrompt      string   `json:"systemPrompt" yaml:"system_prompt"`
	KnowledgeBase     []Asset  `json:"knowledgeBase" yaml:"knowledge_base"`
	Icon              *Asset   `json:"agentIcon,omitempty" yaml:"agent_icon,omitempty"`
	UserMessageColor  string   `json:"userMessageColor" yaml:"user_message_color"`
	AgentMessageColor string   `json:"agentMessageColor" yaml:"agent_message_color"`
	OpeningMessage    string   `json:"openingMessage" yaml:"opening_message"`
	QuickMessages     []string `json:"quickMessages" yaml:"quick_messages"`
	IsPaid            bool     `json:"isPaid" yaml:"is_paid"`
	IsPublic          bool     `json:"isPublic" yaml:"is_public"`
}

// Normalize は未指定のフィールドに既定値を設定します。
func (c *Config) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.OwnerID = strings.TrimSpace(c.OwnerID)
	if c.PrimaryModel == "" {
		c.PrimaryModel = DefaultModel
	}
	if c.FallbackModel == "" {
		c.FallbackModel = DefaultModel
	}
	if c.UserMessageColor == "" {
		c.UserMessageColor = DefaultUserMessageColor
	}
	if c.AgentMessageColor == "" {
		c.AgentMessageColor = DefaultAgentMessageColor
	}
	if c.KnowledgeBase == nil {
		c.KnowledgeBase = []Asset{}
	}
	if c.QuickMessages == nil {
		c.QuickMessages = []string{}
	}
}

// Validate は必須項目と列挙値を検証します。
func (c *Config) Validate() error {
	if c.OwnerID == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidConfig)
	}
	if strings.Contains(c.OwnerID, "/") {
		return fmt.Errorf("%w: userId must not contain '/'", ErrInvalidConfig)
	}
	if c.Name == "" {
		return fmt.Errorf("%w: agentName is required", ErrInvalidConfig)
	}
	for _, m := range []Model{c.PrimaryModel, c.FallbackModel} {
		switch m {
		case ModelOpenAI, ModelClaude, ModelDeepSeek:
		default:
			return fmt.Errorf("%w: unsupported model %q", ErrInvalidConfig, m)
		}
	}
	for i, doc := range c.KnowledgeBase {
		if strings.TrimSpace(doc.URL) == "" {
			return fmt.Errorf("%w: knowledgeBase[%d] has no url", ErrInvalidConfig, i)
		}
		if strings.TrimSpace(doc.Name) == "" {
			return fmt.Errorf("%w: knowledgeBase[%d] has no name", ErrInvalidConfig, i)
		}
	}
	return nil
}

// DocumentURLs はナレッジベースの URL 一覧を宣言順で返します。
func (c *Config) DocumentURLs() []string {
	urls := make([]string, 0, len(c.KnowledgeBase))
	for _, doc := range c.KnowledgeBase {
		urls = append(urls, doc.URL)
	}
	return urls
}

// LogoURL はアイコンの URL を返します。
func (c *Config) LogoURL() string {
	if c.Icon == nil {
		return ""
	}
	return c.Icon.URL
}

// VectorConfig は取り込み結果のうちエージェント行に保存する部分です。
type VectorConfig struct {
	Namespace     string   `json:"namespace"`
	DocumentCount int      `json:"documentCount"`
	Documents     []string `json:"documents"`
	Status        string   `json:"status"`
}

// Derived は設定更新ステージで書き込む派生データです。
type Derived struct {
	DocumentURLs []string
	LogoURL      string
	Vector       VectorConfig
}

// Deployment はデプロイ結果です。
type Deployment struct {
	ID  string `json:"deploymentId"`
	URL string `json:"deploymentUrl"`
}

// Record は agents テーブルの1行です。
type Record struct {
	ID           string
	Config       Config
	Status       Status
	DocumentURLs []string
	LogoURL      string
	Vector       *VectorConfig
	Deployment   *Deployment
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
