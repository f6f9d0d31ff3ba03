package config

// Config 组件运行所需的完整配置（可选）。
// 功能：承载 HTTP 监听、上游视频服务、存储与轮询/清理行为相关配置。
// 注意：宿主也可完全绕过本包，直接通过 videogen.Options 构造组件。
type Config struct {
	Host string `yaml:"host"` // 服务监听地址，例如 0.0.0.0
	Port int    `yaml:"port"` // 服务监听端口，例如 8899

	Provider struct {
		BaseURL       string `yaml:"baseUrl"`       // 上游 API 基础地址，例如 https://api.openai.com/v1
		APIKey        string `yaml:"apiKey"`        // 鉴权密钥
		WebhookSecret string `yaml:"webhookSecret"` // 回调验签共享密钥
	} `yaml:"provider"`

	Mysql struct {
		DataSource string `yaml:"dataSource"` // 形如 user:pass@tcp(127.0.0.1:3306)/db?charset=utf8mb4&parseTime=true&loc=Local
	} `yaml:"mysql"`

	Sqlite struct {
		Path string `yaml:"path"` // SQLite 数据库文件路径
	} `yaml:"sqlite"`

	PollSeconds         int    `yaml:"pollSeconds"`         // 轮询周期（秒）
	MaxJobAgeMinutes    int    `yaml:"maxJobAgeMinutes"`    // 任务最长存活时间（分钟），超时置为 expired
	PollFailureCap      int    `yaml:"pollFailureCap"`      // 连续轮询失败上限
	RetainTerminalHours int    `yaml:"retainTerminalHours"` // 终态记录保留时长（小时）
	ArtifactDir         string `yaml:"artifactDir"`         // 产物落盘目录，空表示不落盘
}
