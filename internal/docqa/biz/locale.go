package biz

import "strings"

// Locale 提示词与面向用户文案的语言模板。
type Locale struct {
	// Name 语言代码。
	Name string
	// SystemPrompt 系统提示，约束模型只依据上下文回答。
	SystemPrompt string
	// ContextBlock 单个检索结果的格式：序号、来源、相关度、正文。
	ContextBlock string
	// Separator 检索结果之间的分隔符。
	Separator string
	// UserTurn 最后一轮用户消息的格式：上下文、问题。
	UserTurn string
	// NoRelevantInfo 检索结果为空时的回答。
	NoRelevantInfo string
	// NoDocuments 文档目录中没有可用文档时的提示，参数为目录。
	NoDocuments string
	// Loaded 重新加载成功的提示，参数为文档块数量。
	Loaded string
	// ErrorPrefix 回答失败时错误信息的前缀。
	ErrorPrefix string
}

// Russian 默认语言模板。
var Russian = Locale{
	Name: "ru",
	SystemPrompt: `Ты помощник, который отвечает на вопросы на основе предоставленных документов.

ПРАВИЛА:
- Отвечай только на основе предоставленного контекста
- Если информации нет в контексте, честно скажи об этом
- Будь кратким и точным
- Всегда указывай на какие источники ссылаешься
- Отвечай на русском языке`,
	ContextBlock:   "Документ %d (%s, релевантность: %.2f):\n%s",
	Separator:      "\n\n---\n\n",
	UserTurn:       "КОНТЕКСТ:\n%s\n\nВОПРОС: %s",
	NoRelevantInfo: "К сожалению, я не нашел релевантной информации в документах.",
	NoDocuments:    "Документы не найдены в папке %s",
	Loaded:         "Загружено %d частей документов",
	ErrorPrefix:    "Произошла ошибка: ",
}

// English 英文模板。
var English = Locale{
	Name: "en",
	SystemPrompt: `You are an assistant that answers questions using the provided documents.

RULES:
- Answer only from the provided context
- If the context does not contain the information, say so honestly
- Be brief and precise
- Always name the sources you rely on
- Answer in English`,
	ContextBlock:   "Document %d (%s, relevance: %.2f):\n%s",
	Separator:      "\n\n---\n\n",
	UserTurn:       "CONTEXT:\n%s\n\nQUESTION: %s",
	NoRelevantInfo: "Unfortunately, I could not find relevant information in the documents.",
	NoDocuments:    "No documents found in %s",
	Loaded:         "Loaded %d document chunks",
	ErrorPrefix:    "An error occurred: ",
}

// LocaleFor 按语言代码返回模板，未知语言使用 Russian。
func LocaleFor(lang string) *Locale {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "en", "en-us", "en_us", "english":
		l := English
		return &l
	default:
		l := Russian
		return &l
	}
}
