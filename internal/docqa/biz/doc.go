// Package biz 提供文档问答服务的业务逻辑层。
//
// 该包将检索增强生成拆分为以下组件：
//   - Chunker: 按词窗口切分文本
//   - DocumentLoader: 扫描文档目录、提取文本并切分
//   - Assembler: 将检索结果拼装为带来源和相关度的上下文
//   - Generator: 组合系统提示、历史、上下文和问题并调用 LLM
//   - RetrievalService: 组合以上组件，提供 Reload、Ask、Stats、ClearHistory
//   - Evaluator: 批量提问并计算关键词召回率
package biz
