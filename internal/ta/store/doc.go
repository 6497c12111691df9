// Package store 提供虚拟助教的索引存储：bbolt 索引文件（向量 + 片段元数据）、
// 内存精确 L2 检索、Milvus 向量后端与 sqlite 元数据后端。
//
// 索引文件内向量位置 i 与片段位置 i 一一对应，这是离线构建与在线查询之间的约定。
package store
