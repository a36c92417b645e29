// Package crawlers 驱动税率查询页面上的级联表单并解析结果
//
// # 概述
//
// 目标页面是一个 ASP.NET 表单: TaxYear → County → Agency → Project 四个下拉框,
// 上游字段每次变化都会触发服务端回发并重新填充下游选项。本包把浏览器细节收敛在
// Session 接口之后, 上层只和 Session、Driver、Extract 打交道。
//
// # 核心组件
//
// ## Session / RodSession
//
// 基于 go-rod 的浏览器会话。OpenSession 负责启动浏览器、打开目标页、
// 在登录页上点击访客入口, 并等待至少一个下拉框出现。
//
//	sess, err := OpenSession(ctx, cfg, headerProvider)
//	if err != nil { /* *models.SessionError */ }
//	defer sess.Close()
//
// 测试中使用 crawlertest.Site 提供的脚本化会话代替浏览器。
//
// ## Driver / Matcher
//
// Driver.Select 读取当前选项, 用 Matcher 按 精确值 → 精确文本 → 子串 → 模糊
// 的顺序寻找目标, 提交选择后调用 Session.Settle 等待回发完成。
// 找不到匹配项时强制写入原始值并记录警告。
//
//	d := NewDriver(NewMatcher(cfg.FuzzyThreshold))
//	committed, err := d.Select(ctx, sess, models.FieldCounty, "SALT LAKE")
//
// ## Extract
//
// 解析结果区域中的实体税率表。行名以四位数字加下划线开头 (如 "1010_City Hall"),
// 税率形如 0.001519。存在 Real/Personal/Centrally 表头时按列名取值,
// 否则按出现顺序赋值并记录警告。页面出现"无数据"提示时返回 Empty。
//
// ## ResourceMonitor / Probe
//
// ResourceMonitor 在启动浏览器前检查可用内存和CPU负载, 并收紧并行会话数。
// Probe 用 colly 发一次普通请求, 检查登录页和下拉框是否存在, 不启动浏览器。
//
// # 并发安全
//
// 同一个 Session 只能顺序使用; 并行遍历时每个分片各自打开会话。
package crawlers
