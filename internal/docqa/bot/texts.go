package bot

const (
	welcomeText = "🤖 Привет! Я RAG-бот для поиска по документам.\n\n" +
		"📋 Команды:\n" +
		"/start - это сообщение\n" +
		"/reload - перезагрузить документы из папки\n" +
		"/stats - статистика системы\n" +
		"/clear - очистить историю чата\n\n" +
		"💡 Просто напиши любой вопрос, и я найду ответ в загруженных документах!"

	reloadingText   = "🔄 Перезагружаю документы..."
	statsHeader     = "📊 Статистика системы:\n\n📄 Всего частей документов: %d\n📁 Всего файлов: %d\n\n📚 Загруженные файлы:"
	statsNoFiles    = "\n(документы не загружены)"
	historyCleared  = "🗑️ История чата очищена"
	notReadyText    = "⚠️ Документы не загружены. Используй команду /reload для загрузки документов из папки."
	thinkingText    = "🤔 Ищу ответ в документах..."
	sourcesFooter   = "\n\n📚 Источники: %s\n📊 Найдено документов: %d"
	uploadSaved     = "📥 Файл %s сохранён. Используй /reload, чтобы обновить индекс."
	uploadFormat    = "❌ Формат не поддерживается. Поддерживаются: %s"
	uploadFailed    = "❌ Не удалось сохранить файл: %s"
	uploadsDisabled = "❌ Загрузка документов отключена."
)
