package common

const (
	KEY_WORKSPACE_CREDENTIAL = "workspace_credential:%s"
)

const (
	PLATFORM_SLACK    = "slack"
	PLATFORM_TELEGRAM = "telegram"
)

func GetPlatformList() []string {
	return []string{
		PLATFORM_SLACK,
		PLATFORM_TELEGRAM,
	}
}

const (
	KEY_LOG_HOOK_SEND_ALERT = "send_alert"
)
