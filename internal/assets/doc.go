// Package assets 提供非 /api 路径的两种服务方式：生产模式读取构建产物目录，
// 开发模式把请求转发给前端 bundler。进程启动时由 New 按模式选定其一。
package assets
