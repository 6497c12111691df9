// Package biz 实现虚拟助教的查询流水线：资源管理、向量检索、可选重排序、
// 图片文字提取、答案组装，以及串联这些阶段的编排器。
package biz
